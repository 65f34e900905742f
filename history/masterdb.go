package history

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
)

const (
	masterVersion    uint32 = 5000
	masterVersionMin uint32 = 4999

	saltLength  = 128
	saltCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// MasterDB holds the two salts bound into every per-object filename and
// every per-object record: prehash and posthash. They are generated once
// per data directory and never rotated; losing them (or the db-secret
// that encrypts them) makes every existing per-object file
// undecryptable and unfindable by name.
type MasterDB struct {
	Prehash  string
	Posthash string
}

// LoadOrCreateMasterDB reads path, decrypting it with stream, or
// generates and persists a fresh MasterDB if the file doesn't exist yet.
func LoadOrCreateMasterDB(path string, stream *secretStream) (*MasterDB, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		mdb, genErr := generateMasterDB()
		if genErr != nil {
			return nil, fmt.Errorf("generate master db: %w", genErr)
		}
		if err := writeMasterDB(path, stream, mdb); err != nil {
			return nil, fmt.Errorf("write master db: %w", err)
		}
		return mdb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open master db: %w", err)
	}

	plain, err := stream.decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt master db: %w", err)
	}
	return decodeMasterDB(plain)
}

func generateMasterDB() (*MasterDB, error) {
	pre, err := randomAlnum(saltLength)
	if err != nil {
		return nil, err
	}
	post, err := randomAlnum(saltLength)
	if err != nil {
		return nil, err
	}
	return &MasterDB{Prehash: pre, Posthash: post}, nil
}

func randomAlnum(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random salt byte: %w", err)
		}
		out[i] = saltCharset[idx.Int64()]
	}
	return string(out), nil
}

func writeMasterDB(path string, stream *secretStream, mdb *MasterDB) error {
	var buf bytes.Buffer
	writeU32(&buf, masterVersion)
	writeStr(&buf, &mdb.Prehash)
	writeStr(&buf, &mdb.Posthash)

	cipher, err := stream.encrypt(buf.Bytes())
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	return writeFileAtomic(path, cipher)
}

func decodeMasterDB(data []byte) (*MasterDB, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading version", ErrCorrupt)
	}
	if version < masterVersionMin || version > masterVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	preP, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading prehash", ErrCorrupt)
	}
	postP, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading posthash", ErrCorrupt)
	}
	return &MasterDB{Prehash: derefOr(preP, ""), Posthash: derefOr(postP, "")}, nil
}
