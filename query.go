package agoda

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// The extraction schema is declarative: a struct describes the fields to
// pull from the rendered page and UnmarshalPage fills it in. Each field may
// carry these tags:
//
//   - `find` CSS selector locating the field inside the parent selection
//   - `attr` read this attribute instead of the element text
//   - `re` regular expression with one capture group applied to the text
//   - `time` layout for time.Time fields
//   - `optional` "true" leaves the field zero when the selector matches
//     nothing instead of failing
//
// Pointer fields are always optional: no match sets them to nil. A record
// with absent optional fields is still emitted; only fields that the schema
// requires can fail an extraction.

type QueryOption struct {
	Attr     string
	Re       string
	Time     string
	Loc      *time.Location
	Optional bool
}

type MustBePointerError struct{}

func (err MustBePointerError) Error() string {
	return "destination must be a pointer to the value"
}

type UnexportedFieldError struct{}

func (err UnexportedFieldError) Error() string {
	return "field must be exported"
}

// FieldError wraps a failure with the path of struct fields leading to it.
type FieldError struct {
	Field string
	Err   error
}

func (err FieldError) Error() string {
	e := err.Err
	fields := []string{err.Field}
	next, ok := e.(FieldError)
	for ok {
		fields = append(fields, next.Field)
		e = next.Err
		next, ok = e.(FieldError)
	}
	return fmt.Sprintf("%v: %v", strings.Join(fields, "."), e)
}

func (err FieldError) Unwrap() error { return err.Err }

// MissingFieldError reports a required field with no match on the page.
type MissingFieldError struct {
	Selector string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("no match for required selector %q", err.Selector)
}

func stripchars(str, chr string) string {
	return strings.Map(func(r rune) rune {
		if !strings.ContainsRune(chr, r) {
			return r
		}
		return -1
	}, str)
}

var numberRe = regexp.MustCompile(` *([0-9,]+([.][0-9]*)?).*`)

// ExtractNumber pulls the leading numeric value out of display text such
// as "8.4 Excellent" or "1,234 reviews".
func ExtractNumber(in string) (float64, error) {
	s := stripchars(numberRe.ReplaceAllString(in, "$1"), ", 　")
	return strconv.ParseFloat(s, 64)
}

// UnmarshalPage fills v from the selection per the schema tags on v's type.
func UnmarshalPage(v interface{}, selection *goquery.Selection, opt QueryOption) error {
	if opt.Loc == nil {
		opt.Loc = time.UTC
	}
	if reflect.TypeOf(v).Kind() != reflect.Ptr {
		return MustBePointerError{}
	}
	return unmarshalValue(reflect.ValueOf(v).Elem(), selection, opt)
}

func unmarshalValue(value reflect.Value, sel *goquery.Selection, opt QueryOption) error {
	if !value.CanSet() {
		return fmt.Errorf("value must be settable")
	}

	type match struct {
		Sel  *goquery.Selection
		Text string
	}
	selected := make([]match, 0, sel.Length())
	for i := 0; i < sel.Length(); i++ {
		j := sel.Eq(i)

		var s string
		if opt.Attr != "" {
			w, ok := j.Attr(opt.Attr)
			if !ok {
				continue
			}
			s = w
		} else {
			s = j.Text()
		}

		if opt.Re != "" {
			re, err := regexp.Compile(opt.Re)
			if err != nil {
				return fmt.Errorf("re:%#v: %v", opt.Re, err)
			}
			submatch := re.FindStringSubmatch(s)
			switch len(submatch) - 1 {
			case -1:
				continue
			case 1:
				s = submatch[1]
			default:
				return fmt.Errorf("re:%#v: must have exactly one capture group", opt.Re)
			}
		}

		selected = append(selected, match{j, s})
	}

	if value.Kind() == reflect.Slice {
		rv := reflect.MakeSlice(value.Type(), len(selected), len(selected))
		for i := 0; i < len(selected); i++ {
			if err := unmarshalOne(rv.Index(i), selected[i].Sel, selected[i].Text, opt); err != nil {
				return fmt.Errorf("#%d: %v", i, err)
			}
		}
		value.Set(rv)
		return nil
	}

	if value.Kind() == reflect.Ptr {
		if len(selected) == 0 {
			value.Set(reflect.Zero(value.Type()))
			return nil
		}
		newValue := reflect.New(value.Type().Elem())
		value.Set(newValue)
		value = newValue.Elem()
	}

	if len(selected) == 0 {
		if opt.Optional {
			value.Set(reflect.Zero(value.Type()))
			return nil
		}
		return MissingFieldError{}
	}

	// Listing pages repeat markup; the first match wins for scalar fields.
	return unmarshalOne(value, selected[0].Sel, selected[0].Text, opt)
}

func unmarshalOne(value reflect.Value, sel *goquery.Selection, s string, opt QueryOption) error {
	switch value.Interface().(type) {
	case time.Time:
		if opt.Time == "" {
			return fmt.Errorf("time.Time: time tag is required")
		}
		t, err := time.ParseInLocation(opt.Time, s, opt.Loc)
		if err != nil {
			return err
		}
		value.Set(reflect.ValueOf(t))
		return nil
	}

	if opt.Time != "" {
		return fmt.Errorf("`time` tag must be empty unless time.Time")
	}

	if value.Kind() == reflect.Struct {
		return unmarshalStruct(value, sel, opt)
	}

	switch value.Interface().(type) {
	case string:
		value.SetString(strings.TrimSpace(s))

	case int, int8, int16, int32, int64:
		i, err := strconv.ParseInt(stripchars(strings.TrimSpace(s), ","), 10, 64)
		if err != nil {
			return err
		}
		value.SetInt(i)

	case uint, uint8, uint16, uint32, uint64:
		i, err := strconv.ParseUint(stripchars(strings.TrimSpace(s), ","), 10, 64)
		if err != nil {
			return err
		}
		value.SetUint(i)

	case float32, float64:
		f, err := ExtractNumber(s)
		if err != nil {
			return err
		}
		value.SetFloat(f)

	default:
		return fmt.Errorf("unsupported type %v", value.Type())
	}
	return nil
}

func unmarshalStruct(value reflect.Value, sel *goquery.Selection, opt QueryOption) error {
	if opt.Re != "" {
		return fmt.Errorf("`re` tag must be empty for struct")
	}
	if opt.Attr != "" {
		return fmt.Errorf("`attr` tag must be empty for struct")
	}

	vt := value.Type()
	for i := 0; i < vt.NumField(); i++ {
		fieldType := vt.Field(i)
		fieldValue := value.Field(i)

		if fieldType.PkgPath != "" {
			return FieldError{fieldType.Name, UnexportedFieldError{}}
		}

		selector := fieldType.Tag.Get("find")
		selected := sel
		if selector != "" {
			selected = sel.Find(selector)
		}

		fieldOpt := QueryOption{
			Attr:     fieldType.Tag.Get("attr"),
			Re:       fieldType.Tag.Get("re"),
			Time:     fieldType.Tag.Get("time"),
			Loc:      opt.Loc,
			Optional: fieldType.Tag.Get("optional") == "true",
		}

		if err := unmarshalValue(fieldValue, selected, fieldOpt); err != nil {
			if m, ok := err.(MissingFieldError); ok && m.Selector == "" {
				err = MissingFieldError{Selector: selector}
			}
			return FieldError{fieldType.Name, err}
		}
	}
	return nil
}
