package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/recophone/api/internal/platform/config"
)

type ftpConn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	FileSize(path string) (int64, error)
	NoOp() error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

type dialFunc func(ctx context.Context) (ftpConn, error)

// FTPStore keeps documents on an FTP(S) server. Every call opens its own connection,
// so concurrent use is safe.
type FTPStore struct {
	cfg  config.FTPConfig
	base string
	dial dialFunc
	// publicBase, when set, prefixes document URLs.
	publicBase string
}

// NewFTPStore builds a store from configuration.
func NewFTPStore(cfg config.FTPConfig, publicBaseURL string) (*FTPStore, error) {
	cfg.Host = strings.TrimSuffix(strings.TrimSpace(cfg.Host), ".")
	if cfg.Host == "" {
		return nil, errors.New("storage: ftp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	store := &FTPStore{
		cfg:        cfg,
		base:       "/" + strings.Trim(strings.TrimSpace(cfg.BaseDir), "/"),
		publicBase: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
	store.dial = store.dialServer
	return store, nil
}

func (s *FTPStore) dialServer(ctx context.Context) (ftpConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if s.cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Secure {
		serverName := s.cfg.TLSServerName
		if serverName == "" {
			serverName = s.cfg.Host
		}
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: s.cfg.TLSInsecure, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}))
	}
	conn, err := ftp.Dial(net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)), opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: ftp dial: %w", err)
	}
	wrapped := serverConn{conn}
	if err := wrapped.Login(s.cfg.User, s.cfg.Password); err != nil {
		_ = wrapped.Quit()
		return nil, fmt.Errorf("storage: ftp login: %w", err)
	}
	return wrapped, nil
}

func (s *FTPStore) withConn(ctx context.Context, fn func(ftpConn) error) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Quit() }()
	return fn(conn)
}

// Put uploads body, creating parent directories as needed.
func (s *FTPStore) Put(ctx context.Context, name string, body io.Reader, _ int64, _ string) error {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return ErrInvalidPath
	}
	return s.withConn(ctx, func(conn ftpConn) error {
		if dir := path.Dir(rel); dir != "." {
			s.mkdirAll(conn, dir)
		}
		if err := conn.Stor(joinPath(s.base, rel), body); err != nil {
			return fmt.Errorf("storage: ftp upload %s: %w", rel, err)
		}
		return nil
	})
}

func (s *FTPStore) mkdirAll(conn ftpConn, dir string) {
	current := ""
	for _, segment := range strings.Split(dir, "/") {
		if current == "" {
			current = segment
		} else {
			current += "/" + segment
		}
		// Existing directories answer 550; ignored.
		_ = conn.MakeDir(joinPath(s.base, current))
	}
}

// List returns the entries of dir, directories first then by French collation.
func (s *FTPStore) List(ctx context.Context, dir string) ([]Entry, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	err = s.withConn(ctx, func(conn ftpConn) error {
		raw, err := conn.List(joinPath(s.base, rel))
		if err != nil {
			return fmt.Errorf("storage: ftp list %q: %w", rel, err)
		}
		entries = convertFTPEntries(rel, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortEntries(entries)
	return entries, nil
}

// Open streams a file. The connection is released when Body is closed.
func (s *FTPStore) Open(ctx context.Context, name string) (Object, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return Object{}, ErrInvalidPath
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return Object{}, err
	}
	full := joinPath(s.base, rel)
	size, err := conn.FileSize(full)
	if err != nil {
		_ = conn.Quit()
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	body, err := conn.Retr(full)
	if err != nil {
		_ = conn.Quit()
		return Object{}, fmt.Errorf("storage: ftp retrieve %s: %w", rel, err)
	}
	return Object{
		Body:        &connReadCloser{ReadCloser: body, conn: conn},
		Size:        size,
		ContentType: ContentTypeFor(rel),
	}, nil
}

// URL returns the public URL of a document, or an ftp:// locator when no public base is configured.
func (s *FTPStore) URL(_ context.Context, name string) (string, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return "", ErrInvalidPath
	}
	if s.publicBase != "" {
		return s.publicBase + "/" + escapePath(rel), nil
	}
	u := url.URL{Scheme: "ftp", Host: s.cfg.Host, Path: joinPath(s.base, rel)}
	return u.String(), nil
}

// Ping dials, logs in and sends NOOP.
func (s *FTPStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(conn ftpConn) error { return conn.NoOp() })
}

type connReadCloser struct {
	io.ReadCloser
	conn ftpConn
}

func (c *connReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if qerr := c.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

func convertFTPEntries(dir string, raw []*ftp.Entry) []Entry {
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		if item == nil || item.Name == "." || item.Name == ".." {
			continue
		}
		if item.Type == ftp.EntryTypeLink {
			continue
		}
		full := item.Name
		if dir != "" {
			full = dir + "/" + item.Name
		}
		entries = append(entries, Entry{
			Name:       item.Name,
			Path:       full,
			IsDir:      item.Type == ftp.EntryTypeFolder,
			Size:       int64(item.Size),
			ModifiedAt: item.Time,
		})
	}
	return entries
}

// SortEntries orders directories first, then names with French collation.
func SortEntries(entries []Entry) {
	frCollator := collate.New(language.French, collate.IgnoreCase)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return frCollator.CompareString(entries[i].Name, entries[j].Name) < 0
	})
}

func escapePath(rel string) string {
	segments := strings.Split(rel, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
