package agoda

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dimchansky/utfbom"
)

// Sink persists a finished (or partial) run. The pipeline writes after
// every completed hotel so an interrupted run still leaves a usable
// artifact; writes must therefore never leave a half-written file behind.
type Sink interface {
	Write(report RunReport) error
}

// JSONFileSink writes one JSON artifact per run: hotel records with their
// reviews nested, plus the error section. Writes go through a temp file
// and an atomic rename.
type JSONFileSink struct {
	path string
	log  Logger
}

func NewJSONFileSink(dir string, startedAt time.Time, log Logger) (*JSONFileSink, error) {
	if log == nil {
		log = NopLogger{}
	}
	if err := os.MkdirAll(dir, 0o744); err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("agoda_reviews_%s.json", startedAt.Format("20060102_150405"))
	return &JSONFileSink{path: filepath.Join(dir, filename), log: log}, nil
}

// Path returns where the artifact is (or will be) written.
func (sink *JSONFileSink) Path() string {
	return sink.path
}

func (sink *JSONFileSink) Write(report RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	tempPath := sink.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, sink.path); err != nil {
		os.Remove(tempPath)
		return err
	}
	sink.log.Printf("saved %d hotels, %d errors to %v", len(report.Hotels), len(report.Errors), sink.path)
	return nil
}

// LoadReport reads an artifact back, tolerating a BOM from files that went
// through other tooling. Review back-references are restored from the
// nesting.
func LoadReport(path string) (RunReport, error) {
	var report RunReport
	file, err := os.Open(path)
	if err != nil {
		return report, err
	}
	defer file.Close()

	if err := json.NewDecoder(utfbom.SkipOnly(file)).Decode(&report); err != nil {
		return report, err
	}
	for i := range report.Hotels {
		for j := range report.Hotels[i].Reviews {
			report.Hotels[i].Reviews[j].HotelID = report.Hotels[i].ID
		}
	}
	return report, nil
}

// CSVSink is a flat per-hotel summary export alongside the JSON artifact.
type CSVSink struct {
	Path string
}

func (sink *CSVSink) Write(report RunReport) error {
	tempPath := sink.Path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	header := []string{"id", "name", "url", "address", "rating", "price", "reviews_scraped"}
	if err := writer.Write(header); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	for _, hotel := range report.Hotels {
		rating := ""
		if hotel.Rating != nil {
			rating = strconv.FormatFloat(*hotel.Rating, 'f', -1, 64)
		}
		row := []string{
			hotel.ID,
			hotel.Name,
			hotel.URL,
			hotel.Address,
			rating,
			hotel.Price,
			strconv.Itoa(len(hotel.Reviews)),
		}
		if err := writer.Write(row); err != nil {
			file.Close()
			os.Remove(tempPath)
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, sink.Path)
}
