package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zjrosen/linkctl/internal/cachemanager"
	"github.com/zjrosen/linkctl/internal/log"
)

// ErrArtifactNotFound is returned when no artifact file matches a contract name.
var ErrArtifactNotFound = errors.New("contract artifact not found")

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// artifactFile is the subset of a hardhat/truffle artifact we read. Truffle
// style files (build/contracts/X.json) carry the same two keys.
type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// ArtifactStore finds artifacts under a directory tree by contract name and
// keeps parsed results in a read-through cache.
type ArtifactStore struct {
	dir   string
	cache *cachemanager.ReadThroughCache[string, *Artifact, string]

	indexOnce sync.Once
	index     map[string]string
	indexErr  error
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	s := &ArtifactStore{dir: dir}
	mgr := cachemanager.NewInMemoryCacheManager[string, *Artifact](
		"artifacts", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval)
	s.cache = cachemanager.NewReadThroughCache[string, *Artifact, string](mgr, s.load, false)
	return s
}

// Load returns the artifact for contract name.
func (s *ArtifactStore) Load(ctx context.Context, name string) (*Artifact, error) {
	return s.cache.Get(ctx, name, name, cachemanager.NoExpiration)
}

func (s *ArtifactStore) load(_ context.Context, name string) (*Artifact, error) {
	s.indexOnce.Do(func() { s.index, s.indexErr = buildIndex(s.dir) })
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	path, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q under %s", ErrArtifactNotFound, name, s.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	art, err := ParseArtifact(name, data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	log.Debug(log.CatCache, "artifact loaded", "name", name, "path", path)
	return art, nil
}

// buildIndex maps contract names to artifact paths. Debug files (.dbg.json)
// and build-info are skipped. The first match wins.
func buildIndex(dir string) (map[string]string, error) {
	index := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		if !strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".dbg.json") {
			return nil
		}
		name := strings.TrimSuffix(base, ".json")
		if _, seen := index[name]; !seen {
			index[name] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning artifacts in %s: %w", dir, err)
	}
	return index, nil
}

// ParseArtifact decodes an artifact document. A file that is a bare ABI array
// is accepted too; it has no bytecode and so can only be called, not deployed.
func ParseArtifact(name string, data []byte) (*Artifact, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		parsed, err := abi.JSON(bytes.NewReader(trimmed))
		if err != nil {
			return nil, fmt.Errorf("parsing abi: %w", err)
		}
		return &Artifact{Name: name, ABI: parsed}, nil
	}

	var file artifactFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if len(file.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(file.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing abi: %w", err)
	}
	art := &Artifact{Name: name, ABI: parsed}
	if code := strings.TrimSpace(file.Bytecode); code != "" && code != "0x" {
		if !strings.HasPrefix(code, "0x") {
			code = "0x" + code
		}
		bin, err := hexutil.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("decoding bytecode: %w", err)
		}
		art.Bytecode = bin
	}
	return art, nil
}
