// Package registry loads the camera list that drives a check run.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Asteroidea-tn/streamcheck/pkg/urlcrypt"
)

// ErrNotFound is returned when the camera file does not exist.
var ErrNotFound = errors.New("camera file not found")

// Camera is one named video source.
type Camera struct {
	Name string
	URL  string
}

// Registry maps camera names to URLs. Iteration follows the order in which
// names were first seen; a repeated name keeps its slot and takes the later URL.
type Registry struct {
	order []string
	urls  map[string]string
}

func New() *Registry {
	return &Registry{urls: make(map[string]string)}
}

// Set adds or replaces the URL for name.
func (r *Registry) Set(name, url string) {
	if _, ok := r.urls[name]; !ok {
		r.order = append(r.order, name)
	}
	r.urls[name] = url
}

// Get returns the URL registered for name.
func (r *Registry) Get(name string) (string, bool) {
	url, ok := r.urls[name]
	return url, ok
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Cameras returns the entries in iteration order.
func (r *Registry) Cameras() []Camera {
	cams := make([]Camera, 0, len(r.order))
	for _, name := range r.order {
		cams = append(cams, Camera{Name: name, URL: r.urls[name]})
	}
	return cams
}

// Unsealer opens "enc:" URLs. *urlcrypt.Service satisfies it.
type Unsealer interface {
	Open(value string) (string, error)
}

type Option func(*loader)

// WithUnsealer enables sealed URLs in the camera file.
func WithUnsealer(u Unsealer) Option {
	return func(l *loader) { l.unsealer = u }
}

type loader struct {
	logger   zerolog.Logger
	unsealer Unsealer
	reg      *Registry
}

// Load reads a camera file. Files ending in .yaml or .yml are read as a
// YAML camera list; anything else as "name,url" lines.
func Load(path string, logger zerolog.Logger, opts ...Option) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("open camera file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f, logger, opts...)
	default:
		return Parse(f, logger, opts...)
	}
}

// Parse reads "name,url" lines. Blank lines and lines starting with '#' are
// ignored; a line without a comma is logged as a warning and skipped.
// Lines have no length limit.
func Parse(r io.Reader, logger zerolog.Logger, opts ...Option) (*Registry, error) {
	l := newLoader(logger, opts)

	br := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read camera file: %w", err)
		}
		if raw == "" && err != nil {
			break
		}
		lineNo++

		line := strings.TrimSpace(raw)
		if line != "" && !strings.HasPrefix(line, "#") {
			if name, url, ok := strings.Cut(line, ","); ok {
				l.add(lineNo, strings.TrimSpace(name), strings.TrimSpace(url))
			} else {
				l.logger.Warn().Int("line", lineNo).Msgf("Skipping malformed line: %s", line)
			}
		}
		if err != nil {
			break
		}
	}

	return l.reg, nil
}

type yamlFile struct {
	Cameras []yamlCamera `yaml:"cameras"`
}

type yamlCamera struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ParseYAML reads a document of the form
//
//	cameras:
//	  - name: lobby
//	    url: rtsp://10.0.0.5/stream
func ParseYAML(r io.Reader, logger zerolog.Logger, opts ...Option) (*Registry, error) {
	l := newLoader(logger, opts)

	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	for i, c := range doc.Cameras {
		name, url := strings.TrimSpace(c.Name), strings.TrimSpace(c.URL)
		if name == "" || url == "" {
			l.logger.Warn().Int("entry", i+1).Msgf("Skipping malformed entry: name=%q url=%q", c.Name, c.URL)
			continue
		}
		l.add(i+1, name, url)
	}

	return l.reg, nil
}

func newLoader(logger zerolog.Logger, opts []Option) *loader {
	l := &loader{logger: logger, reg: New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *loader) add(lineNo int, name, url string) {
	if urlcrypt.IsSealed(url) {
		if l.unsealer == nil {
			l.logger.Warn().Int("line", lineNo).Str("camera", name).Msg("Skipping sealed url: no key configured")
			return
		}
		opened, err := l.unsealer.Open(url)
		if err != nil {
			l.logger.Warn().Int("line", lineNo).Str("camera", name).Err(err).Msg("Skipping sealed url: cannot open")
			return
		}
		url = opened
	}
	l.reg.Set(name, url)
}
