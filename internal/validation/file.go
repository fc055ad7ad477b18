package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/templui/transit/internal/file"
)

// Rule names
const (
	RuleRequired  = "required"
	RuleExtension = "extension"
	RuleMimeType  = "mimeType"
	RuleType      = "type"
	RuleFilesize  = "filesize"
	RuleWidth     = "width"
	RuleHeight    = "height"
	RuleMinWidth  = "minWidth"
	RuleMinHeight = "minHeight"
	RuleMaxWidth  = "maxWidth"
	RuleMaxHeight = "maxHeight"
)

// DefaultMessages are the user-facing templates; %s receives the rule's threshold or allow-list.
var DefaultMessages = map[string]string{
	RuleRequired:  "This file is required",
	RuleExtension: "Your file extension is not allowed; allowed extensions: %s",
	RuleMimeType:  "Your file type is not allowed; allowed types: %s",
	RuleType:      "Your file type is not allowed; allowed types: %s",
	RuleFilesize:  "Your file size is too large; maximum size %s",
	RuleWidth:     "Your image width is invalid; required width is %s",
	RuleHeight:    "Your image height is invalid; required height is %s",
	RuleMinWidth:  "Your image width is too small; minimum width %s",
	RuleMinHeight: "Your image height is too small; minimum height %s",
	RuleMaxWidth:  "Your image width is too large; maximum width %s",
	RuleMaxHeight: "Your image height is too large; maximum height %s",
}

// Error is a failed rule with its rendered message.
type Error struct {
	Rule    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Rules is the set of checks for one field. Zero values disable a check.
type Rules struct {
	Required   bool              `yaml:"required"`
	AllowEmpty bool              `yaml:"allowEmpty"`
	Extension  []string          `yaml:"extension"`
	MimeType   []string          `yaml:"mimeType"`
	Type       []string          `yaml:"type"`
	Filesize   ByteSize          `yaml:"filesize"`
	Width      int               `yaml:"width"`
	Height     int               `yaml:"height"`
	MinWidth   int               `yaml:"minWidth"`
	MinHeight  int               `yaml:"minHeight"`
	MaxWidth   int               `yaml:"maxWidth"`
	MaxHeight  int               `yaml:"maxHeight"`
	Messages   map[string]string `yaml:"messages"`
}

// Empty reports whether no rule is configured.
func (r Rules) Empty() bool {
	return !r.Required && len(r.Extension) == 0 && len(r.MimeType) == 0 && len(r.Type) == 0 &&
		r.Filesize == 0 && r.Width == 0 && r.Height == 0 && r.MinWidth == 0 &&
		r.MinHeight == 0 && r.MaxWidth == 0 && r.MaxHeight == 0
}

// Validate runs the rules against f. present is false when the source was
// empty; in that case the allow-empty policy is decided before any other rule
// and f is never touched.
func Validate(f *file.File, present bool, rules Rules) error {
	if !present {
		if rules.AllowEmpty || !rules.Required {
			return nil
		}
		return rules.fail(RuleRequired, "")
	}
	if f == nil {
		return rules.fail(RuleRequired, "")
	}

	if len(rules.Extension) > 0 && !Extension(f, rules.Extension) {
		return rules.fail(RuleExtension, strings.Join(rules.Extension, ", "))
	}
	if len(rules.MimeType) > 0 && !MimeType(f, rules.MimeType) {
		return rules.fail(RuleMimeType, strings.Join(rules.MimeType, ", "))
	}
	if len(rules.Type) > 0 && !Type(f, rules.Type) {
		return rules.fail(RuleType, strings.Join(rules.Type, ", "))
	}
	if rules.Filesize > 0 && !Filesize(f, int64(rules.Filesize)) {
		return rules.fail(RuleFilesize, humanize.IBytes(uint64(rules.Filesize)))
	}

	checks := []struct {
		rule  string
		value int
		pass  func(*file.File, int) bool
	}{
		{RuleWidth, rules.Width, Width},
		{RuleHeight, rules.Height, Height},
		{RuleMinWidth, rules.MinWidth, MinWidth},
		{RuleMinHeight, rules.MinHeight, MinHeight},
		{RuleMaxWidth, rules.MaxWidth, MaxWidth},
		{RuleMaxHeight, rules.MaxHeight, MaxHeight},
	}
	for _, c := range checks {
		if c.value > 0 && !c.pass(f, c.value) {
			return rules.fail(c.rule, strconv.Itoa(c.value))
		}
	}

	return nil
}

func (r Rules) fail(rule, arg string) *Error {
	tmpl, ok := r.Messages[rule]
	if !ok {
		tmpl = DefaultMessages[rule]
	}

	msg := tmpl
	if strings.Contains(tmpl, "%s") {
		msg = fmt.Sprintf(tmpl, arg)
	}
	return &Error{Rule: rule, Message: msg}
}

// Required fails only when the file is required and absent.
func Required(present, required bool) bool {
	return present || !required
}

func Extension(f *file.File, allowed []string) bool {
	return containsFold(allowed, f.Extension())
}

func MimeType(f *file.File, allowed []string) bool {
	m, err := f.MimeType()
	if err != nil {
		return false
	}
	return containsFold(allowed, m)
}

// Type checks the classification group.
func Type(f *file.File, allowed []string) bool {
	group := f.Group()
	return group != "" && containsFold(allowed, group)
}

func Filesize(f *file.File, maxBytes int64) bool {
	size, err := f.Size()
	return err == nil && size <= maxBytes
}

func Width(f *file.File, exact int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Width == exact })
}

func Height(f *file.File, exact int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Height == exact })
}

func MinWidth(f *file.File, min int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Width >= min })
}

func MinHeight(f *file.File, min int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Height >= min })
}

func MaxWidth(f *file.File, max int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Width <= max })
}

func MaxHeight(f *file.File, max int) bool {
	return dimension(f, func(d file.Dimensions) bool { return d.Height <= max })
}

// dimension fails closed when the header cannot be decoded.
func dimension(f *file.File, pass func(file.Dimensions) bool) bool {
	d, err := f.Dimensions()
	if err != nil {
		return false
	}
	return pass(d)
}

func containsFold(allowed []string, value string) bool {
	value = strings.ToLower(strings.TrimPrefix(value, "."))
	return lo.ContainsBy(allowed, func(a string) bool {
		return strings.ToLower(strings.TrimPrefix(a, ".")) == value
	})
}
