package credentials

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

const (
	bundleDescriptorName = "salesforce-mcp/credentials"
	bundleContext        = "salesforce-mcp credential token v1"
)

// Codec encrypts and decrypts credential records to and from transport-safe
// tokens. The symmetric key material lives in a PEM bundle on disk; it is
// loaded lazily on first use, so a missing bundle is only an error once a
// token actually needs encoding or decoding.
type Codec struct {
	path string

	once    sync.Once
	root    keymgmt.RootKey
	desc    keymgmt.Descriptor
	loadErr error
}

// NewCodec returns a codec backed by the key bundle at bundlePath. The
// bundle is not touched until the first Encode or Decode call.
func NewCodec(bundlePath string) *Codec {
	return &Codec{path: bundlePath}
}

func (c *Codec) load() error {
	c.once.Do(func() {
		if c.path == "" {
			c.loadErr = fmt.Errorf("credential key bundle not configured")
			return
		}
		raw, err := os.ReadFile(c.path)
		if err != nil {
			c.loadErr = fmt.Errorf("read credential key bundle: %w", err)
			return
		}
		store, err := keymgmt.LoadPEM(raw)
		if err != nil {
			c.loadErr = fmt.Errorf("load credential key bundle: %w", err)
			return
		}
		root, ok, err := store.RootKey()
		if err != nil {
			c.loadErr = fmt.Errorf("read root key: %w", err)
			return
		}
		if !ok {
			c.loadErr = fmt.Errorf("credential key bundle %q missing root key", c.path)
			return
		}
		desc, ok, err := store.Descriptor(bundleDescriptorName)
		if err != nil {
			c.loadErr = fmt.Errorf("read credential descriptor: %w", err)
			return
		}
		if !ok {
			c.loadErr = fmt.Errorf("credential key bundle %q missing descriptor %q", c.path, bundleDescriptorName)
			return
		}
		c.root = root
		c.desc = desc
	})
	return c.loadErr
}

// Encode encrypts rec into an opaque URL-safe token. Two encodings of the
// same record need not be byte-identical, but every token decodes back to
// an equal record.
func (c *Codec) Encode(rec Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if err := c.load(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode credential record: %w", err)
	}
	kg := kryptograf.New(c.root)
	material, err := kg.ReconstructDEK([]byte(bundleContext), c.desc)
	if err != nil {
		return "", fmt.Errorf("reconstruct credential DEK: %w", err)
	}
	defer material.Zero()
	var buf bytes.Buffer
	writer, err := kg.EncryptWriter(&buf, material)
	if err != nil {
		return "", fmt.Errorf("encrypt credential record: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("encrypt credential record write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("encrypt credential record close: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode decrypts a token produced by Encode. A token minted under a
// different key, or any string that is not a valid token, fails with a
// DecodeError; it never yields a partially-correct record.
func (c *Codec) Decode(token string) (Record, error) {
	if err := c.load(); err != nil {
		return Record{}, &api.Failure{Kind: api.KindDecodeError, Message: "credential key unavailable", Detail: err.Error()}
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Record{}, api.Failf(api.KindDecodeError, "credential token is not valid base64")
	}
	if len(ciphertext) == 0 {
		return Record{}, api.Failf(api.KindDecodeError, "credential token is empty")
	}
	kg := kryptograf.New(c.root)
	material, err := kg.ReconstructDEK([]byte(bundleContext), c.desc)
	if err != nil {
		return Record{}, api.Failf(api.KindDecodeError, "reconstruct credential DEK failed")
	}
	defer material.Zero()
	reader, err := kg.DecryptReader(bytes.NewReader(ciphertext), material)
	if err != nil {
		return Record{}, api.Failf(api.KindDecodeError, "credential token failed authentication")
	}
	defer reader.Close()
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return Record{}, api.Failf(api.KindDecodeError, "credential token failed authentication")
	}
	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Record{}, api.Failf(api.KindDecodeError, "credential token payload is not a credential record")
	}
	return rec, nil
}

// GenerateBundle mints a fresh key bundle at path: a kryptograf root key
// plus the credential DEK descriptor, committed as a single PEM file with
// owner-only permissions. Refuses to overwrite an existing file unless
// force is set.
func GenerateBundle(path string, force bool) error {
	if path == "" {
		return fmt.Errorf("key bundle path required")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("key bundle %q already exists (use force to overwrite)", path)
		}
	}
	var out []byte
	store, err := keymgmt.LoadPEMInto([]byte(nil), &out)
	if err != nil {
		return fmt.Errorf("initialize key store: %w", err)
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return fmt.Errorf("ensure root key: %w", err)
	}
	material, err := store.EnsureDescriptor(bundleDescriptorName, root, []byte(bundleContext))
	if err != nil {
		return fmt.Errorf("ensure credential descriptor: %w", err)
	}
	material.Zero()
	if err := store.Commit(); err != nil {
		return fmt.Errorf("commit key material: %w", err)
	}
	if len(out) == 0 {
		out, err = store.Bytes()
		if err != nil {
			return fmt.Errorf("serialize key material: %w", err)
		}
	}
	return writeAtomic(path, out, 0o600)
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key bundle dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp bundle: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace key bundle: %w", err)
	}
	return nil
}
