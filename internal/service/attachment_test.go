package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/transit/internal/attachment"
	"github.com/templui/transit/internal/db"
	"github.com/templui/transit/internal/model"
	"github.com/templui/transit/internal/repository"
	"github.com/templui/transit/internal/transform"
	"github.com/templui/transit/internal/transit"
	"github.com/templui/transit/internal/transport"
	"github.com/templui/transit/internal/validation"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 90, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newRepo(t *testing.T) repository.RecordRepository {
	t.Helper()

	conn, err := db.Init("sqlite", filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(conn) })

	require.NoError(t, db.RunMigrations(context.Background(), conn.DB, "sqlite"))
	return repository.NewRecordRepository(conn)
}

type env struct {
	root  string
	final string
}

func newEnv(t *testing.T) env {
	root := t.TempDir()
	return env{root: root, final: filepath.Join(root, "files")}
}

func (e env) config() attachment.Config {
	cfg := attachment.Defaults()
	cfg.UploadDir = filepath.Join(e.root, "tmp")
	cfg.FinalDir = e.final
	return cfg
}

func (e env) upload(t *testing.T, name string, w, h int) transit.Upload {
	t.Helper()

	dir := filepath.Join(e.root, "incoming")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data := pngBytes(t, w, h)
	path := filepath.Join(dir, "php"+name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return transit.Upload{TempPath: path, Name: name, Size: int64(len(data))}
}

func build(t *testing.T, name string, cfg attachment.Config, deps attachment.Deps) *attachment.Field {
	t.Helper()

	f, err := attachment.Build(context.Background(), name, cfg, deps)
	require.NoError(t, err)
	return f
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// stuckTransporter stores locally but can never delete.
type stuckTransporter struct {
	transport.Transporter
}

func (stuckTransporter) Delete(ctx context.Context, ref string) error {
	return errors.New("permission denied")
}

type failingRepo struct {
	repository.RecordRepository
}

func (failingRepo) Create(record *model.Record) error {
	return errors.New("disk full")
}

func TestSaveCreatesRecord(t *testing.T) {
	e := newEnv(t)

	cfg := e.config()
	cfg.DBColumn = "image"
	cfg.FinalPath = "/files/"
	cfg.MetaColumns = map[string]string{"width": "image_width", "ext": "image_ext"}
	cfg.Transforms = []transform.Spec{{Method: transform.KindResize, Width: 50, DBColumn: "image_thumb"}}

	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})

	res, err := svc.Save(context.Background(), "post", "", map[string]transit.Source{
		"image": e.upload(t, "cover.png", 100, 60),
	})
	require.NoError(t, err)
	assert.Empty(t, res.FieldErrors)

	stored, err := svc.Record(res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "post", stored.Model)
	assert.Equal(t, "/files/cover.png", stored.Columns.String("image"))
	assert.Equal(t, "/files/cover_resized_50x30.png", stored.Columns.String("image_thumb"))
	assert.Equal(t, "png", stored.Columns.String("image_ext"))
	assert.EqualValues(t, 100, stored.Columns["image_width"])

	assert.ElementsMatch(t, []string{"cover.png", "cover_resized_50x30.png"}, listDir(t, e.final))
}

func TestSaveReplacesThenCleansUp(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})
	ctx := context.Background()

	first, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "first.png", 10, 10)})
	require.NoError(t, err)
	oldPath := first.Record.Columns.String("path")
	assert.FileExists(t, oldPath)

	second, err := svc.Save(ctx, "post", first.Record.ID, map[string]transit.Source{"image": e.upload(t, "second.png", 10, 10)})
	require.NoError(t, err)

	newPath := second.Record.Columns.String("path")
	assert.Equal(t, filepath.Join(e.final, "second.png"), newPath)
	assert.FileExists(t, newPath)
	assert.NoFileExists(t, oldPath)

	stored, err := svc.Record(first.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, newPath, stored.Columns.String("path"))
}

func TestSaveKeepsOldFilesWithoutCleanup(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	cfg.CleanupOld = false
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})
	ctx := context.Background()

	first, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "first.png", 10, 10)})
	require.NoError(t, err)
	_, err = svc.Save(ctx, "post", first.Record.ID, map[string]transit.Source{"image": e.upload(t, "second.png", 10, 10)})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"first.png", "second.png"}, listDir(t, e.final))
}

func TestSaveSurvivesCleanupFailure(t *testing.T) {
	e := newEnv(t)
	remoteDir := filepath.Join(e.root, "remote")

	transports := transport.NewRegistry()
	transports.Register("stuck", func(ctx context.Context, s transport.Spec) (transport.Transporter, error) {
		local, err := transport.NewLocal(remoteDir, "https://cdn.example.com")
		if err != nil {
			return nil, err
		}
		return stuckTransporter{local}, nil
	})

	cfg := e.config()
	cfg.Transport = []transport.Spec{{Class: "stuck"}}
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{
		build(t, "image", cfg, attachment.Deps{Transports: transports}),
	})
	ctx := context.Background()

	first, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "first.png", 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/first.png", first.Record.Columns.String("path"))

	second, err := svc.Save(ctx, "post", first.Record.ID, map[string]transit.Source{"image": e.upload(t, "second.png", 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/second.png", second.Record.Columns.String("path"))

	// The old object could not be removed; the record still moved on.
	assert.ElementsMatch(t, []string{"first.png", "second.png"}, listDir(t, remoteDir))
	assert.Empty(t, listDir(t, e.final))
}

func TestSaveCleansUpEveryTransporter(t *testing.T) {
	e := newEnv(t)
	primary := filepath.Join(e.root, "primary")
	mirror := filepath.Join(e.root, "mirror")

	cfg := e.config()
	cfg.Transport = []transport.Spec{
		{Class: transport.KindLocal, Directory: primary, PublicURL: "https://a.example.com"},
		{Class: transport.KindLocal, Directory: mirror, PublicURL: "https://b.example.com"},
	}
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})
	ctx := context.Background()

	first, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "first.png", 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/first.png", first.Record.Columns.String("path"))

	stored, err := svc.Record(first.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com/first.png", "https://b.example.com/first.png"}, stored.Columns.Copies("path"))

	_, err = svc.Save(ctx, "post", first.Record.ID, map[string]transit.Source{"image": e.upload(t, "second.png", 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"second.png"}, listDir(t, primary))
	assert.Equal(t, []string{"second.png"}, listDir(t, mirror))

	require.NoError(t, svc.Delete(ctx, first.Record.ID))
	assert.Empty(t, listDir(t, primary))
	assert.Empty(t, listDir(t, mirror))
}

func TestSaveStopsAndDiscardsEarlierFields(t *testing.T) {
	e := newEnv(t)

	avatar := e.config()
	avatar.DBColumn = "avatar"
	avatar.FinalDir = filepath.Join(e.final, "avatars")

	doc := e.config()
	doc.DBColumn = "doc"
	doc.FinalDir = filepath.Join(e.final, "docs")
	doc.Validation = validation.Rules{Extension: []string{"pdf"}}

	repo := newRepo(t)
	svc := NewAttachmentService(repo, []*attachment.Field{
		build(t, "avatar", avatar, attachment.Deps{}),
		build(t, "doc", doc, attachment.Deps{}),
	})

	_, err := svc.Save(context.Background(), "user", "", map[string]transit.Source{
		"avatar": e.upload(t, "me.png", 10, 10),
		"doc":    e.upload(t, "cv.png", 10, 10),
	})
	require.ErrorIs(t, err, transit.ErrValidationFailed)

	assert.Empty(t, listDir(t, avatar.FinalDir))
	assert.Empty(t, listDir(t, doc.FinalDir))

	records, err := repo.Records("user")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveContinuesWithDefaultPath(t *testing.T) {
	e := newEnv(t)

	avatar := e.config()
	avatar.DBColumn = "avatar"
	avatar.StopSave = false
	avatar.DefaultPath = "/img/default.png"
	avatar.Validation = validation.Rules{MaxWidth: 5}

	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "avatar", avatar, attachment.Deps{})})

	res, err := svc.Save(context.Background(), "user", "", map[string]transit.Source{
		"avatar": e.upload(t, "wide.png", 20, 10),
	})
	require.NoError(t, err)
	require.Contains(t, res.FieldErrors, "avatar")
	assert.ErrorIs(t, res.FieldErrors["avatar"], transit.ErrValidationFailed)
	assert.Equal(t, "/img/default.png", res.Record.Columns.String("avatar"))
	assert.Empty(t, listDir(t, e.final))
}

func TestSaveEmptyUsesDefaultPath(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	cfg.DefaultPath = "/img/none.png"
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})
	ctx := context.Background()

	res, err := svc.Save(ctx, "post", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/img/none.png", res.Record.Columns.String("path"))

	// The default is replaced without being deleted.
	res, err = svc.Save(ctx, "post", res.Record.ID, map[string]transit.Source{"image": e.upload(t, "real.png", 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.final, "real.png"), res.Record.Columns.String("path"))
}

func TestSaveEmptyKeepsExistingValue(t *testing.T) {
	e := newEnv(t)
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", e.config(), attachment.Deps{})})
	ctx := context.Background()

	first, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "keep.png", 10, 10)})
	require.NoError(t, err)

	second, err := svc.Save(ctx, "post", first.Record.ID, map[string]transit.Source{"image": transit.Upload{Error: transit.UploadNoFile}})
	require.NoError(t, err)
	assert.Equal(t, first.Record.Columns.String("path"), second.Record.Columns.String("path"))
	assert.FileExists(t, second.Record.Columns.String("path"))
}

func TestSaveDiscardsWhenPersistFails(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	cfg.Transforms = []transform.Spec{{Method: transform.KindScale, DBColumn: "small"}}
	svc := NewAttachmentService(failingRepo{}, []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})

	_, err := svc.Save(context.Background(), "post", "", map[string]transit.Source{"image": e.upload(t, "a.png", 10, 10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, listDir(t, e.final))
}

func TestSaveUnknownField(t *testing.T) {
	e := newEnv(t)
	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", e.config(), attachment.Deps{})})

	_, err := svc.Save(context.Background(), "post", "", map[string]transit.Source{"cover": nil})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = svc.Save(context.Background(), "post", "missing", nil)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

func TestDeleteRemovesFilesAndRecord(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	cfg.FinalPath = "/files/"
	cfg.DefaultPath = "/img/none.png"
	cfg.Transforms = []transform.Spec{{Method: transform.KindScale, DBColumn: "small"}}

	svc := NewAttachmentService(newRepo(t), []*attachment.Field{build(t, "image", cfg, attachment.Deps{})})
	ctx := context.Background()

	res, err := svc.Save(ctx, "post", "", map[string]transit.Source{"image": e.upload(t, "gone.png", 20, 20)})
	require.NoError(t, err)
	require.Len(t, listDir(t, e.final), 2)

	require.NoError(t, svc.Delete(ctx, res.Record.ID))
	assert.Empty(t, listDir(t, e.final))

	_, err = svc.Record(res.Record.ID)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, res.Record.ID), repository.ErrRecordNotFound)
}

func TestColumnsScan(t *testing.T) {
	var c model.Columns
	require.NoError(t, c.Scan(`{"path":"/a.png","width":10}`))
	assert.Equal(t, "/a.png", c.String("path"))
	assert.Equal(t, "", c.String("width"))

	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c)

	assert.Error(t, c.Scan(42))

	require.NoError(t, c.Scan(`{"path":"https://a/x.png","_copies":{"path":["https://a/x.png","","https://c/x.png"]}}`))
	assert.Equal(t, []string{"https://a/x.png", "", "https://c/x.png"}, c.Copies("path"))
	assert.Nil(t, c.Copies("thumb"))

	c.SetCopies("path", nil)
	assert.NotContains(t, c, model.CopiesColumn)
}
