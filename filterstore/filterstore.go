// Package filterstore persists the compiled filter engine on the local disk so
// that the next start doesn't need to fetch the filter lists.
package filterstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/filterlist"
	"github.com/abrw/reqfilter/internal/metrics"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Key is the name of the persisted blob.
const Key = "blocklist"

// ErrNotFound is returned by [Store.Load] and [Store.Info] when there is no
// usable blob.  The underlying cause is wrapped.
const ErrNotFound errors.Error = "filter blob not found"

// Blob format.  All integers are big-endian.
//
//	magic      [4]byte
//	version    uint16
//	id         [16]byte
//	created    int64, unix nanoseconds
//	rules      uint32
//	payloadLen uint32
//	payload    [payloadLen]byte, zstd-compressed newline-separated rule texts
//	checksum   [32]byte, sha256 of all of the above
const (
	magic         = "RQFB"
	formatVersion = uint16(1)

	headerLen   = len(magic) + 2 + 16 + 8 + 4 + 4
	checksumLen = sha256.Size
)

// maxDecodedSize is the maximum size of the decompressed payload.
const maxDecodedSize = 512 << 20

// Errors describing the corrupted blobs.
const (
	errTruncated errors.Error = "blob is truncated"
	errMagic     errors.Error = "bad magic"
	errVersion   errors.Error = "unsupported format version"
	errChecksum  errors.Error = "checksum mismatch"
	errRules     errors.Error = "rule count mismatch"
	errNewline   errors.Error = "rule text contains a newline"
)

// Config is the configuration structure for the store.
type Config struct {
	// Logger is used to log the operations of the store.  It must not be nil.
	Logger *slog.Logger

	// Dir is the directory of the blob.  It is created on the first save.
	Dir string
}

// Store is the filter store keeping a single blob.  It is safe for concurrent
// use.
type Store struct {
	logger *slog.Logger

	// mu serializes saves and removals.  Loads don't need it since the blob
	// is replaced atomically.
	mu *sync.Mutex

	dir  string
	path string
}

// New returns a new store.  c must not be nil.
func New(c *Config) (s *Store) {
	return &Store{
		logger: c.Logger,
		mu:     &sync.Mutex{},
		dir:    c.Dir,
		path:   filepath.Join(c.Dir, Key+".bin"),
	}
}

// Path returns the path of the blob file.
func (s *Store) Path() (path string) {
	return s.path
}

// BlobInfo is the information from the blob header.
type BlobInfo struct {
	// Created is the time the blob was written.
	Created time.Time

	// ID is the identity tag of the saved engine.
	ID uuid.UUID

	// Version is the format version.
	Version uint16

	// RulesCount is the number of saved rule texts.
	RulesCount int

	// PayloadSize is the size of the compressed payload.
	PayloadSize int
}

// Load reads the blob and restores the engine.  Absent or corrupted blobs are
// reported with an error wrapping [ErrNotFound].
func (s *Store) Load(ctx context.Context) (e *reqfilter.Engine, err error) {
	defer func() { metrics.StoreOps.WithLabelValues("load", metrics.StatusLabel(err)).Inc() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	info, texts, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrNotFound, s.path, err)
	}

	e = reqfilter.NewEngine(filterlist.NewSnapshot(texts), info.ID)
	s.logger.InfoContext(
		ctx,
		"loaded filter blob",
		"id", info.ID,
		"created", info.Created,
		"rules", e.RulesCount(),
	)

	return e, nil
}

// Save writes e to the blob, replacing the previous one atomically.
func (s *Store) Save(ctx context.Context, e *reqfilter.Engine) (err error) {
	defer func() { metrics.StoreOps.WithLabelValues("save", metrics.StatusLabel(err)).Inc() }()

	data, err := encode(e, time.Now())
	if err != nil {
		return fmt.Errorf("encoding blob: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.MkdirAll(s.dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating dir: %w", err)
	}

	err = renameio.WriteFile(s.path, data, 0o644)
	if err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}

	s.logger.InfoContext(ctx, "saved filter blob", "id", e.ID(), "size", len(data))

	return nil
}

// Remove deletes the blob.  It is not an error if there is no blob.
func (s *Store) Remove(ctx context.Context) (err error) {
	defer func() { metrics.StoreOps.WithLabelValues("remove", metrics.StatusLabel(err)).Inc() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("removing blob: %w", err)
	}

	s.logger.DebugContext(ctx, "removed filter blob", "path", s.path)

	return nil
}

// Info reads the header of the blob without verifying the payload.
func (s *Store) Info(ctx context.Context) (info *BlobInfo, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil {
			s.logger.DebugContext(ctx, "closing blob", slogutil.KeyError, closeErr)
		}
	}()

	header := make([]byte, headerLen)
	_, err = io.ReadFull(f, header)
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrNotFound, errors.Join(errTruncated, err))
	}

	info, err = decodeHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return info, nil
}

// encode serializes the rule texts of e.
func encode(e *reqfilter.Engine, created time.Time) (data []byte, err error) {
	texts := e.RuleTexts()
	for _, t := range texts {
		if strings.ContainsAny(t, "\r\n") {
			return nil, fmt.Errorf("%w: %q", errNewline, t)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	payload := enc.EncodeAll([]byte(strings.Join(texts, "\n")), nil)

	err = enc.Close()
	if err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	id := e.ID()

	buf := bytes.NewBuffer(make([]byte, 0, headerLen+len(payload)+checksumLen))
	buf.WriteString(magic)
	buf.Write(binary.BigEndian.AppendUint16(nil, formatVersion))
	buf.Write(id[:])
	buf.Write(binary.BigEndian.AppendUint64(nil, uint64(created.UnixNano())))
	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(texts))))
	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(payload))))
	buf.Write(payload)

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])

	return buf.Bytes(), nil
}

// decode verifies data and returns the header and the rule texts.
func decode(data []byte) (info *BlobInfo, texts []string, err error) {
	if len(data) < headerLen+checksumLen {
		return nil, nil, errTruncated
	}

	body, trailer := data[:len(data)-checksumLen], data[len(data)-checksumLen:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, nil, errChecksum
	}

	info, err = decodeHeader(body[:headerLen])
	if err != nil {
		return nil, nil, err
	}

	payload := body[headerLen:]
	if len(payload) != info.PayloadSize {
		return nil, nil, errTruncated
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, nil, fmt.Errorf("creating decoder: %w", err)
	}
	defer dec.Close()

	text, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing: %w", err)
	}

	if len(text) > 0 {
		texts = strings.Split(string(text), "\n")
	}

	if len(texts) != info.RulesCount {
		return nil, nil, fmt.Errorf("%w: want %d, got %d", errRules, info.RulesCount, len(texts))
	}

	return info, texts, nil
}

// decodeHeader parses the blob header.  header must be headerLen bytes long.
func decodeHeader(header []byte) (info *BlobInfo, err error) {
	if string(header[:len(magic)]) != magic {
		return nil, errMagic
	}

	rest := header[len(magic):]

	version := binary.BigEndian.Uint16(rest)
	if version != formatVersion {
		return nil, fmt.Errorf("%w: %d", errVersion, version)
	}

	rest = rest[2:]

	id, err := uuid.FromBytes(rest[:16])
	if err != nil {
		// Should not happen.
		return nil, fmt.Errorf("parsing id: %w", err)
	}

	rest = rest[16:]

	return &BlobInfo{
		Created:     time.Unix(0, int64(binary.BigEndian.Uint64(rest))),
		ID:          id,
		Version:     version,
		RulesCount:  int(binary.BigEndian.Uint32(rest[8:])),
		PayloadSize: int(binary.BigEndian.Uint32(rest[12:])),
	}, nil
}
