package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/metrics"
	"github.com/templui/transit/internal/mime"
	"github.com/templui/transit/internal/transform"
	"github.com/templui/transit/internal/transport"
	"github.com/templui/transit/internal/validation"
)

// State of a pipeline run.
type State string

const (
	StateIdle        State = "idle"
	StateAcquired    State = "acquired"
	StateValidated   State = "validated"
	StateTransformed State = "transformed"
	StateTransported State = "transported"
	StateDone        State = "done"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// Transport failure policies
const (
	FailFatal = "fatal"
	FailSoft  = "soft"
)

var ErrAlreadyRun = errors.New("pipeline already run")

// Step is a resolved transform.
type Step struct {
	Method      transform.Kind
	Self        bool
	DBColumn    string
	Folder      string
	Transformer transform.Transformer
}

// Dispatch is a resolved transporter.
type Dispatch struct {
	Class       transport.Kind
	Transporter transport.Transporter
	Destination transport.Destination
	KeepLocal   bool
}

// Options configure one run. They are built from the field configuration.
type Options struct {
	Field    string
	Registry *mime.Registry

	// TempDir stages acquired files; FinalDir is where the primary file rests.
	TempDir  string
	FinalDir string
	// FinalPath prefixes local column values, relative to FinalDir.
	FinalPath string

	Naming    file.Naming
	Overwrite bool

	Rules validation.Rules

	DBColumn    string
	MetaColumns map[string]string

	Transforms []Step
	Transports []Dispatch
	// TransportFailure is FailFatal (default) or FailSoft.
	TransportFailure string

	HTTPClient *http.Client
}

// Result is what a successful run hands back to the collaborator.
type Result struct {
	Field string
	// Empty is set when the source was absent and that was allowed.
	Empty bool
	// Files holds the primary file at 0 and derived files after it, in transform order.
	Files []*file.File
	// References parallels Files; "" means the file was not transported.
	References []string
	// Copies maps file columns to the reference from every transporter, in
	// transporter order. It is only set when more than one is configured.
	Copies map[string][]string
	// Columns maps database columns to values: paths, references and metadata.
	Columns  map[string]any
	Metadata map[string]any
}

func (r *Result) Primary() *file.File {
	if r == nil || len(r.Files) == 0 {
		return nil
	}
	return r.Files[0]
}

// Transit runs the pipeline for one field of one save. It is not reusable.
type Transit struct {
	opts    Options
	state   State
	journal *journal
}

func New(opts Options) *Transit {
	if opts.Registry == nil {
		opts.Registry = mime.Default()
	}
	if opts.TransportFailure == "" {
		opts.TransportFailure = FailFatal
	}
	return &Transit{
		opts:    opts,
		state:   StateIdle,
		journal: &journal{field: opts.Field},
	}
}

func (t *Transit) State() State {
	return t.state
}

// Run acquires src, validates it, places it in FinalDir, applies the
// transforms and dispatches every file to the transporters. Any failure rolls
// back everything the run created and returns an *Error.
func (t *Transit) Run(ctx context.Context, src Source) (*Result, error) {
	if t.state != StateIdle {
		return nil, ErrAlreadyRun
	}

	kind := "none"
	if src != nil {
		kind = string(src.Kind())
	}
	log := slog.With("field", t.opts.Field, "source", kind)

	result, err := t.run(ctx, src, log)
	if err != nil {
		t.state = StateError
		failed := t.journal.rollback(ctx)
		t.state = StateRolledBack

		var te *Error
		if !errors.As(err, &te) {
			te = newError(KindTransform, t.opts.Field, err)
		}
		log.Warn("pipeline failed", "kind", te.Kind, "error", te.Err, "rollback_failures", failed)
		metrics.PipelineRuns.WithLabelValues("error", string(te.Kind)).Inc()
		return nil, te
	}

	t.state = StateDone
	outcome := "done"
	if result.Empty {
		outcome = "empty"
	}
	metrics.PipelineRuns.WithLabelValues(outcome, kind).Inc()
	return result, nil
}

// Discard undoes a successful run: every file and remote object it created
// is removed. It returns the number of undo steps that failed. Discard on a
// run that is not done is a no-op.
func (t *Transit) Discard(ctx context.Context) int {
	if t.state != StateDone {
		return 0
	}
	failed := t.journal.rollback(ctx)
	t.state = StateRolledBack
	slog.Info("pipeline discarded", "field", t.opts.Field, "rollback_failures", failed)
	return failed
}

func (t *Transit) fail(kind ErrorKind, err error) error {
	return newError(kind, t.opts.Field, err)
}

func (t *Transit) run(ctx context.Context, src Source, log *slog.Logger) (*Result, error) {
	if absent(src) {
		if err := validation.Validate(nil, false, t.opts.Rules); err != nil {
			return nil, t.fail(KindValidation, err)
		}
		log.Debug("empty source allowed")
		return &Result{Field: t.opts.Field, Empty: true, Columns: map[string]any{}}, nil
	}

	// Idle -> Acquired
	start := time.Now()
	acq := acquirer{dir: t.opts.TempDir, registry: t.opts.Registry, client: t.opts.HTTPClient}
	primary, err := acq.acquire(ctx, src)
	metrics.ObserveStage("acquire", start)
	if err != nil {
		return nil, t.fail(KindAcquisition, err)
	}
	t.journal.addFile(primary)
	t.state = StateAcquired
	log.Debug("acquired", "path", primary.Path())

	// Acquired -> Validated
	if err := t.validate(primary, src.Kind()); err != nil {
		return nil, t.fail(KindValidation, err)
	}
	t.state = StateValidated

	// Validated -> Transformed
	start = time.Now()
	if err := t.place(primary, src); err != nil {
		return nil, t.fail(KindTransform, err)
	}
	files, err := t.transform(ctx, primary, log)
	metrics.ObserveStage("transform", start)
	if err != nil {
		return nil, t.fail(KindTransform, err)
	}
	t.state = StateTransformed

	// Metadata is read before transport may remove local copies.
	md, err := primary.MetadataMap()
	if err != nil {
		return nil, t.fail(KindTransform, fmt.Errorf("failed to read metadata: %w", err))
	}

	// Transformed -> Transported
	start = time.Now()
	refs, copies, err := t.transport(ctx, files, log)
	metrics.ObserveStage("transport", start)
	if err != nil {
		return nil, t.fail(KindTransport, err)
	}
	t.state = StateTransported

	return t.assemble(files, refs, copies, md), nil
}

func (t *Transit) validate(f *file.File, kind SourceKind) error {
	mimeType, err := f.MimeType()
	if err != nil {
		return err
	}

	if _, err := t.opts.Registry.Classify(f.Extension(), mimeType); err != nil {
		// Imports are trusted more loosely than browser uploads.
		if kind != SourceLocal && kind != SourceRemote {
			return err
		}
		slog.Debug("classification skipped for import", "field", t.opts.Field, "ext", f.Extension(), "mime", mimeType)
	}

	return validation.Validate(f, true, t.opts.Rules)
}

// place renames the primary file in staging and moves it to FinalDir.
func (t *Transit) place(f *file.File, src Source) error {
	naming := t.opts.Naming
	naming.Field = t.opts.Field
	naming.Source = src
	if err := f.Rename(naming); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	if t.opts.FinalDir != "" {
		if err := f.Move(t.opts.FinalDir, t.opts.Overwrite); err != nil {
			return fmt.Errorf("failed to move to final directory: %w", err)
		}
	}
	return nil
}

// transform applies self steps to the placed primary first, then derives
// the other outputs from it. files[0] is the primary.
func (t *Transit) transform(ctx context.Context, primary *file.File, log *slog.Logger) ([]*file.File, error) {
	for _, s := range t.opts.Transforms {
		if !s.Self {
			continue
		}
		_, err := s.Transformer.Transform(ctx, primary, true)
		metrics.Transforms.WithLabelValues(string(s.Method), metrics.Result(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Method, err)
		}
		log.Debug("transformed in place", "method", s.Method, "path", primary.Path())
	}

	files := []*file.File{primary}
	for _, s := range t.opts.Transforms {
		if s.Self {
			continue
		}
		out, err := s.Transformer.Transform(ctx, primary, false)
		metrics.Transforms.WithLabelValues(string(s.Method), metrics.Result(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Method, err)
		}
		t.journal.addFile(out)
		files = append(files, out)
		log.Debug("transformed", "method", s.Method, "path", out.Path())
	}
	return files, nil
}

func (t *Transit) derived() []Step {
	steps := make([]Step, 0, len(t.opts.Transforms))
	for _, s := range t.opts.Transforms {
		if !s.Self {
			steps = append(steps, s)
		}
	}
	return steps
}

// transport dispatches every file to every transporter. refs parallels files
// and holds the first successful reference for each; copies holds every
// transporter's reference per file.
func (t *Transit) transport(ctx context.Context, files []*file.File, log *slog.Logger) (refs []string, copies [][]string, err error) {
	refs = make([]string, len(files))
	copies = make([][]string, len(files))
	if len(t.opts.Transports) == 0 {
		return refs, copies, nil
	}

	steps := t.derived()
	removable := make([]bool, len(files))

	for i, f := range files {
		pushed := 0
		keep := false
		copies[i] = make([]string, len(t.opts.Transports))

		for j, d := range t.opts.Transports {
			dest := d.Destination
			if i > 0 && steps[i-1].Folder != "" {
				dest.Folder = steps[i-1].Folder
			}

			size, _ := f.Size()
			ref, err := d.Transporter.Transport(ctx, f, dest)
			metrics.Transports.WithLabelValues(string(d.Class), metrics.Result(err)).Inc()
			if err != nil {
				if t.opts.TransportFailure == FailSoft {
					log.Warn("transport failed, keeping local copy", "class", d.Class, "path", f.Path(), "error", err)
					keep = true
					continue
				}
				return nil, nil, fmt.Errorf("%s: %w", d.Class, err)
			}

			copies[i][j] = ref
			metrics.TransportedBytes.WithLabelValues(string(d.Class)).Add(float64(size))
			t.journal.addRemote(d.Class, d.Transporter, ref)
			log.Debug("transported", "class", d.Class, "path", f.Path(), "ref", ref)

			if pushed == 0 {
				refs[i] = ref
			}
			pushed++
			keep = keep || d.KeepLocal
		}

		removable[i] = pushed > 0 && !keep
	}

	for i, f := range files {
		if !removable[i] {
			continue
		}
		if err := f.Delete(); err != nil {
			log.Warn("failed to remove local copy", "path", f.Path(), "error", err)
		}
	}
	return refs, copies, nil
}

func (t *Transit) assemble(files []*file.File, refs []string, copies [][]string, md map[string]any) *Result {
	r := &Result{
		Field:      t.opts.Field,
		Files:      files,
		References: refs,
		Copies:     map[string][]string{},
		Columns:    map[string]any{},
		Metadata:   md,
	}

	set := func(column string, i int) {
		r.Columns[column] = t.value(files[i], refs[i])
		if len(t.opts.Transports) > 1 && lo.SomeBy(copies[i], func(ref string) bool { return ref != "" }) {
			r.Copies[column] = copies[i]
		}
	}
	if t.opts.DBColumn != "" {
		set(t.opts.DBColumn, 0)
	}
	for i, s := range t.derived() {
		if s.DBColumn != "" {
			set(s.DBColumn, i+1)
		}
	}
	for key, column := range t.opts.MetaColumns {
		if v, ok := md[key]; ok {
			r.Columns[column] = v
		}
	}
	return r
}

// value is the remote reference when there is one, otherwise the local path
// with FinalPath applied.
func (t *Transit) value(f *file.File, ref string) string {
	if ref != "" {
		return ref
	}
	return LocalValue(f.Path(), t.opts.FinalDir, t.opts.FinalPath)
}

// LocalValue turns an absolute path under finalDir into finalPath + the
// relative slash path. Paths outside finalDir, or any path when finalPath
// is empty, are returned as they are.
func LocalValue(p, finalDir, finalPath string) string {
	if finalPath == "" || finalDir == "" {
		return p
	}

	rel, ok := within(finalDir, p)
	if !ok {
		return p
	}
	return strings.TrimSuffix(finalPath, "/") + "/" + filepath.ToSlash(rel)
}

// within returns p relative to dir when p lies inside it.
func within(dir, p string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	p, err = filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// Within reports whether p is dir or lies inside it.
func Within(dir, p string) bool {
	_, ok := within(dir, p)
	return ok
}
