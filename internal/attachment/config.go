package attachment

import (
	"maps"
	"slices"

	"github.com/templui/transit/internal/transform"
	"github.com/templui/transit/internal/transit"
	"github.com/templui/transit/internal/transport"
	"github.com/templui/transit/internal/validation"
)

// Config is the fully resolved configuration of one attachment field.
type Config struct {
	// NameCallback names a registered NameFunc used to rename the primary file.
	NameCallback string
	Append       string
	Prepend      string
	// MaxNameLength truncates the sanitized stem; 0 disables truncation.
	MaxNameLength int

	// UploadDir stages incoming files; FinalDir is where primary files rest.
	UploadDir string
	FinalDir  string
	// FinalPath replaces FinalDir in stored local values, e.g. "/files/uploads/".
	FinalPath string

	DBColumn string
	// MetaColumns maps metadata keys (name, ext, type, size, width, ...) to columns.
	MetaColumns map[string]string
	// DefaultPath is stored when the field is empty and that is allowed.
	DefaultPath string

	Overwrite  bool
	StopSave   bool
	AllowEmpty bool
	// CleanupOld deletes replaced files after the record is saved.
	CleanupOld bool
	// TransportFailure is "fatal" or "soft".
	TransportFailure string

	Transforms []transform.Spec
	Transport  []transport.Spec
	Validation validation.Rules
}

// Defaults documents the value of every field when nothing is configured.
func Defaults() Config {
	return Config{
		UploadDir:        "tmp/uploads",
		FinalDir:         "files/uploads",
		DBColumn:         "path",
		StopSave:         true,
		AllowEmpty:       true,
		CleanupOld:       true,
		TransportFailure: transit.FailFatal,
	}
}

// Overrides is a partial Config as written in configuration files. Nil
// fields keep the value they are merged over.
type Overrides struct {
	NameCallback  *string `yaml:"nameCallback"`
	Append        *string `yaml:"append"`
	Prepend       *string `yaml:"prepend"`
	MaxNameLength *int    `yaml:"maxNameLength"`

	UploadDir *string `yaml:"uploadDir"`
	FinalDir  *string `yaml:"finalDir"`
	FinalPath *string `yaml:"finalPath"`

	DBColumn    *string           `yaml:"dbColumn"`
	MetaColumns map[string]string `yaml:"metaColumns"`
	DefaultPath *string           `yaml:"defaultPath"`

	Overwrite        *bool   `yaml:"overwrite"`
	StopSave         *bool   `yaml:"stopSave"`
	AllowEmpty       *bool   `yaml:"allowEmpty"`
	CleanupOld       *bool   `yaml:"cleanupOld"`
	TransportFailure *string `yaml:"transportFailure"`

	Transforms []transform.Spec   `yaml:"transforms"`
	Transport  []transport.Spec   `yaml:"transport"`
	Validation *validation.Rules `yaml:"validation"`
}

// Merge returns base with every set field of o applied. Neither argument is modified.
func Merge(base Config, o Overrides) Config {
	c := base
	c.MetaColumns = maps.Clone(base.MetaColumns)
	c.Transforms = slices.Clone(base.Transforms)
	c.Transport = slices.Clone(base.Transport)

	set(&c.NameCallback, o.NameCallback)
	set(&c.Append, o.Append)
	set(&c.Prepend, o.Prepend)
	set(&c.MaxNameLength, o.MaxNameLength)
	set(&c.UploadDir, o.UploadDir)
	set(&c.FinalDir, o.FinalDir)
	set(&c.FinalPath, o.FinalPath)
	set(&c.DBColumn, o.DBColumn)
	set(&c.DefaultPath, o.DefaultPath)
	set(&c.Overwrite, o.Overwrite)
	set(&c.StopSave, o.StopSave)
	set(&c.AllowEmpty, o.AllowEmpty)
	set(&c.CleanupOld, o.CleanupOld)
	set(&c.TransportFailure, o.TransportFailure)
	set(&c.Validation, o.Validation)

	if o.MetaColumns != nil {
		c.MetaColumns = maps.Clone(o.MetaColumns)
	}
	if o.Transforms != nil {
		c.Transforms = slices.Clone(o.Transforms)
	}
	if o.Transport != nil {
		c.Transport = slices.Clone(o.Transport)
	}
	return c
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
