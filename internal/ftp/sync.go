// Package ftp discovers and downloads not-yet-processed detection files
// from the toll operator's FTP endpoint. Local-disk presence is the
// deduplication ledger; there is no separate manifest. Downloads land in a
// staging directory and only move into the ledger once the caller commits
// them, so a file downloaded but never persisted is handed out again on
// the next run.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"radar-service/internal/config"
)

// ErrTransport marks connect/login failures, which abort the whole
// ingestion cycle.
var ErrTransport = errors.New("ftp transport failure")

var filenameDatePattern = regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)

const filenameDateLayout = "02-01-2006"

// RemoteConn is the subset of the FTP client the synchronizer needs.
type RemoteConn interface {
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens a logged-in connection positioned in the configured remote
// directory.
type Dialer func(ctx context.Context, cfg config.FTPConfig) (RemoteConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

// DialFTP is the production dialer.
func DialFTP(ctx context.Context, cfg config.FTPConfig) (RemoteConn, error) {
	conn, err := ftp.Dial(cfg.Addr(), ftp.DialWithContext(ctx), ftp.DialWithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Addr(), err)
	}
	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := conn.ChangeDir(cfg.Directory); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("change dir %s: %w", cfg.Directory, err)
	}
	return serverConn{conn}, nil
}

type Synchronizer struct {
	cfg        config.FTPConfig
	windowDays int
	dial       Dialer
	log        zerolog.Logger
	now        func() time.Time
}

func NewSynchronizer(cfg config.FTPConfig, windowDays int, dial Dialer, log zerolog.Logger) *Synchronizer {
	if dial == nil {
		dial = DialFTP
	}
	return &Synchronizer{
		cfg:        cfg,
		windowDays: windowDays,
		dial:       dial,
		log:        log,
		now:        time.Now,
	}
}

func (s *Synchronizer) stagingDir() string {
	return filepath.Join(s.cfg.LocalDir, "incoming")
}

// Run lists the remote directory, filters out files already processed,
// staged, or outside the rolling date window, downloads the remainder into
// the staging area, and returns the paths of every staged file awaiting
// processing, including leftovers from earlier interrupted runs. A
// connection failure fails the whole run; a single-file download failure
// discards only that file.
func (s *Synchronizer) Run(ctx context.Context) ([]string, error) {
	conn, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			s.log.Warn().Err(err).Msg("ftp disconnect failed")
		}
	}()

	if err := os.MkdirAll(s.stagingDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	processed, err := listDir(s.cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("list processed files: %w", err)
	}
	staged, err := listDir(s.stagingDir())
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}

	remote, err := conn.NameList("")
	if err != nil {
		return nil, fmt.Errorf("%w: list remote: %v", ErrTransport, err)
	}

	cutoff := s.now().AddDate(0, 0, -s.windowDays)
	cutoff = time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)

	var candidates []string
	for _, name := range remote {
		if _, seen := processed[name]; seen {
			continue
		}
		if _, seen := staged[name]; seen {
			continue
		}
		fileDate, ok := extractDate(name)
		if !ok {
			s.log.Warn().Str("file", name).Msg("filename has no extractable date, permanently skipped")
			continue
		}
		if fileDate.Before(cutoff) {
			s.log.Debug().Str("file", name).Time("file_date", fileDate).Msg("file outside date window")
			continue
		}
		candidates = append(candidates, name)
	}

	downloaded := 0
	for _, name := range candidates {
		if err := s.download(conn, name); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("download failed, file discarded")
			continue
		}
		downloaded++
	}

	pending, err := listDir(s.stagingDir())
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}
	if len(pending) == 0 {
		s.log.Info().Msg("no files awaiting processing")
		return nil, nil
	}

	paths := make([]string, 0, len(pending))
	for name := range pending {
		paths = append(paths, filepath.Join(s.stagingDir(), name))
	}
	sort.Strings(paths)
	s.log.Info().Int("downloaded", downloaded).Int("pending", len(paths)).Msg("synchronization complete")
	return paths, nil
}

// Commit marks staged files as processed by moving them into the ledger
// directory. Files left uncommitted are handed out again by the next Run.
func (s *Synchronizer) Commit(paths []string) error {
	for _, p := range paths {
		dest := filepath.Join(s.cfg.LocalDir, filepath.Base(p))
		if err := os.Rename(p, dest); err != nil {
			return fmt.Errorf("commit %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func listDir(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}

func (s *Synchronizer) download(conn RemoteConn, name string) error {
	resp, err := conn.Retr(name)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	defer resp.Close()

	path := filepath.Join(s.stagingDir(), name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}

	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("transfer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close local file: %w", err)
	}

	s.log.Info().Str("file", name).Msg("download complete")
	return nil
}

// extractDate pulls the dd-mm-yyyy substring the filename convention
// requires. Files without one are permanently excluded.
func extractDate(name string) (time.Time, bool) {
	match := filenameDatePattern.FindString(name)
	if match == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(filenameDateLayout, match)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
