package stores

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"community.io/pinboard/common/logging"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
)

// PinStore vends the interface to interact with pin data.
type PinStore interface {
	// Save stores p under slug in the pins directory. Without overwrite a clashing slug yields a new
	// file, slug-N; the returned path says where p actually landed
	Save(p *md.Pin, slug string, overwrite bool) (string, *se.Err)
	SaveTo(dir string, p *md.Pin, slug string, overwrite bool) (string, *se.Err)
	Load(path string) (*md.Pin, *se.Err)
	Get(slug string) (*md.Pin, *se.Err)
	List(f Filter) ([]*md.Pin, *se.Err)
	ListIn(dir string, f Filter) ([]*md.Pin, *se.Err)
	ListSlugs(f Filter) (SlugPins, *se.Err)
	ListSlugsIn(dir string, f Filter) (SlugPins, *se.Err)
	// SaveUpload stores an uploaded file without overwriting and returns the basename actually used
	SaveUpload(filename string, data []byte) (string, *se.Err)
	SaveUploadTo(dir, filename string, data []byte) (string, *se.Err)
	// UploadPath joins filename onto the uploads directory without touching disk
	UploadPath(filename string) string
	PinPath(slug string) string
	Close() *se.Err
}

// Filter selects pins by whether their assumed event window has passed
type Filter struct {
	IncludeElapsed  bool
	IncludeUpcoming bool
}

var (
	FilterAll      = Filter{IncludeElapsed: true, IncludeUpcoming: true}
	FilterUpcoming = Filter{IncludeUpcoming: true}
	FilterElapsed  = Filter{IncludeElapsed: true}
)

func (f Filter) accepts(elapsed bool) bool {
	return (elapsed && f.IncludeElapsed) || (!elapsed && f.IncludeUpcoming)
}

// SlugPin pairs a stored pin with the slug its file is named after
type SlugPin struct {
	Slug string
	Pin  *md.Pin
}

// SlugPins keeps directory listing order
type SlugPins []SlugPin

func (sp SlugPins) Map() map[string]*md.Pin {
	m := make(map[string]*md.Pin, len(sp))
	for _, e := range sp {
		m[e.Slug] = e.Pin
	}
	return m
}

func (sp SlugPins) Pins() []*md.Pin {
	pins := make([]*md.Pin, 0, len(sp))
	for _, e := range sp {
		pins = append(pins, e.Pin)
	}
	return pins
}

// ByDatetime returns a copy sorted by event datetime, ties broken by slug. latestFirst reverses the order
func (sp SlugPins) ByDatetime(latestFirst bool) SlugPins {
	out := append(SlugPins{}, sp...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if latestFirst {
			a, b = b, a
		}
		if a.Pin.Datetime.Equal(b.Pin.Datetime) {
			return a.Slug < b.Slug
		}
		return a.Pin.Datetime.Before(b.Pin.Datetime)
	})
	return out
}

// SlugOf returns the slug a stored pin file is named after
func SlugOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), cst.PinFileExt)
}

// cachedPin remembers a decoded pin along with the file state it was decoded from
type cachedPin struct {
	modTime time.Time
	size    int64
	pin     md.Pin
}

// FilePinStore implements PinStore with one JSON file per pin
type FilePinStore struct {
	files FileStore
	dirs  Dirs
	cfg   md.TimeConfig
	clock func() md.TimeValue
	cache gcache.Cache
}

type FilePinStoreOption func(*FilePinStore)

// WithClock overrides the reference instant used when filtering listings
func WithClock(clock func() md.TimeValue) FilePinStoreOption {
	return func(s *FilePinStore) {
		s.clock = clock
	}
}

// WithCacheSize bounds the number of decoded pins kept in memory
func WithCacheSize(size int) FilePinStoreOption {
	return func(s *FilePinStore) {
		s.cache = gcache.New(size).LRU().Build()
	}
}

func NewFilePinStore(files FileStore, dirs Dirs, cfg md.TimeConfig, opts ...FilePinStoreOption) *FilePinStore {
	s := &FilePinStore{
		files: files,
		dirs:  dirs,
		cfg:   cfg,
		clock: md.Now,
		cache: gcache.New(cst.DefaultCacheSize).LRU().Build(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FilePinStore) Save(p *md.Pin, slug string, overwrite bool) (string, *se.Err) {
	return s.SaveTo(s.dirs.Pins, p, slug, overwrite)
}

func (s *FilePinStore) SaveTo(dir string, p *md.Pin, slug string, overwrite bool) (string, *se.Err) {
	clog := logging.WithFuncName().WithField("slug", slug).WithField("overwrite", overwrite)
	if !md.ValidSlug(slug) {
		return "", se.NewBadInput(fmt.Sprintf("invalid slug %q", slug))
	}
	data, err := md.MarshalPin(p)
	if err != nil {
		return "", err
	}
	path, err := s.files.WriteUnique(filepath.Join(dir, slug+cst.PinFileExt), data, overwrite)
	if err != nil {
		clog.WithError(err).Error("error saving pin")
		return "", err
	}
	if info, serr := s.files.Stat(path); serr == nil {
		s.remember(path, info, p)
	}
	clog.WithField("path", path).Debug("pin saved")
	return path, nil
}

func (s *FilePinStore) Load(path string) (*md.Pin, *se.Err) {
	info, err := s.files.Stat(path)
	if err != nil {
		return nil, err
	}
	return s.load(path, info)
}

func (s *FilePinStore) load(path string, info fs.FileInfo) (*md.Pin, *se.Err) {
	if p, ok := s.cached(path, info); ok {
		return p, nil
	}
	data, err := s.files.ReadBytes(path)
	if err != nil {
		return nil, err
	}
	p, err := md.UnmarshalPin(data)
	if err != nil {
		logging.WithFuncName().WithError(err).WithField("path", path).Warn("malformed pin file")
		return nil, se.NewMalformedPin(fmt.Sprintf("malformed pin file %s", path)).WithCause(err)
	}
	s.remember(path, info, p)
	return p, nil
}

func (s *FilePinStore) Get(slug string) (*md.Pin, *se.Err) {
	if !md.ValidSlug(slug) {
		return nil, se.NewBadInput(fmt.Sprintf("invalid slug %q", slug))
	}
	return s.Load(s.PinPath(slug))
}

func (s *FilePinStore) List(f Filter) ([]*md.Pin, *se.Err) {
	return s.ListIn(s.dirs.Pins, f)
}

func (s *FilePinStore) ListIn(dir string, f Filter) ([]*md.Pin, *se.Err) {
	sp, err := s.ListSlugsIn(dir, f)
	if err != nil {
		return nil, err
	}
	return sp.Pins(), nil
}

func (s *FilePinStore) ListSlugs(f Filter) (SlugPins, *se.Err) {
	return s.ListSlugsIn(s.dirs.Pins, f)
}

// ListSlugsIn loads every pin file in dir, in directory listing order, keeping those f accepts. Any
// unreadable or malformed pin file fails the whole listing.
func (s *FilePinStore) ListSlugsIn(dir string, f Filter) (SlugPins, *se.Err) {
	clog := logging.WithFuncName().WithField("dir", dir)
	names, err := s.files.ListEntries(dir)
	if err != nil {
		return nil, err
	}
	out := SlugPins{}
	if !f.IncludeElapsed && !f.IncludeUpcoming {
		return out, nil
	}
	now := s.clock()
	for _, name := range names {
		// dotfiles include in-flight overwrite temp files
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != cst.PinFileExt {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := s.files.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		p, err := s.load(path, info)
		if err != nil {
			clog.WithError(err).WithField("file", name).Error("aborting pin listing")
			return nil, err
		}
		if f.accepts(p.IsElapsed(now, s.cfg)) {
			out = append(out, SlugPin{Slug: SlugOf(name), Pin: p})
		}
	}
	clog.WithField("count", len(out)).Debug("listed pins")
	return out, nil
}

func (s *FilePinStore) SaveUpload(filename string, data []byte) (string, *se.Err) {
	return s.SaveUploadTo(s.dirs.Uploads, filename, data)
}

func (s *FilePinStore) SaveUploadTo(dir, filename string, data []byte) (string, *se.Err) {
	name := filepath.Base(filename)
	if name == "" || strings.HasPrefix(name, ".") || name == string(filepath.Separator) {
		return "", se.NewBadInput(fmt.Sprintf("invalid upload filename %q", filename))
	}
	path, err := s.files.WriteUnique(filepath.Join(dir, name), data, false)
	if err != nil {
		logging.WithFuncName().WithError(err).WithField("filename", name).Error("error saving upload")
		return "", err
	}
	return filepath.Base(path), nil
}

func (s *FilePinStore) UploadPath(filename string) string {
	return filepath.Join(s.dirs.Uploads, filename)
}

func (s *FilePinStore) PinPath(slug string) string {
	return filepath.Join(s.dirs.Pins, slug+cst.PinFileExt)
}

func (s *FilePinStore) Close() *se.Err {
	s.cache.Purge()
	return s.files.Close()
}

// cached returns a copy of the remembered pin when the file still looks the way it did at decode time
func (s *FilePinStore) cached(path string, info fs.FileInfo) (*md.Pin, bool) {
	v, err := s.cache.Get(path)
	if err != nil {
		return nil, false
	}
	e := v.(*cachedPin)
	if !e.modTime.Equal(info.ModTime()) || e.size != info.Size() {
		s.cache.Remove(path)
		return nil, false
	}
	p := e.pin
	return &p, true
}

func (s *FilePinStore) remember(path string, info fs.FileInfo, p *md.Pin) {
	if err := s.cache.Set(path, &cachedPin{modTime: info.ModTime(), size: info.Size(), pin: *p}); err != nil {
		logging.WithFuncName().WithError(err).WithField("path", path).Warn("error caching decoded pin")
	}
}
