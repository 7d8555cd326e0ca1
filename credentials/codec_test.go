package credentials

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.pem")
	if err := GenerateBundle(path, false); err != nil {
		t.Fatalf("generate bundle: %v", err)
	}
	return NewCodec(path)
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	rec := Record{
		Username:      "ops@example.com",
		Password:      "hunter2!",
		SecurityToken: "tok123",
		InstanceURL:   "https://acme.my.salesforce.com",
		Sandbox:       true,
	}
	token, err := codec.Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(token, "+/=\n ") {
		t.Fatalf("token not transport safe: %q", token)
	}
	got, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch: %+v != %+v", got, rec)
	}
}

func TestCodecNondeterministicButEqual(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	rec := Record{Username: "a@example.com", Password: "pw"}
	t1, err := codec.Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	t2, err := codec.Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r1, err := codec.Decode(t1)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	r2, err := codec.Decode(t2)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if r1 != rec || r2 != rec {
		t.Fatal("both tokens must decode to the original record")
	}
}

func TestCodecTamperDetection(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	token, err := codec.Encode(Record{Username: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	for i := range raw {
		flipped := append([]byte(nil), raw...)
		flipped[i] ^= 0x01
		_, err := codec.Decode(base64.RawURLEncoding.EncodeToString(flipped))
		if err == nil {
			t.Fatalf("flipping byte %d did not fail decode", i)
		}
		if !api.IsKind(err, api.KindDecodeError) {
			t.Fatalf("flipping byte %d: expected decode_error, got %v", i, err)
		}
	}
}

func TestCodecWrongKey(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	other := newTestCodec(t)
	token, err := codec.Encode(Record{Username: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := other.Decode(token); !api.IsKind(err, api.KindDecodeError) {
		t.Fatalf("expected decode_error under wrong key, got %v", err)
	}
}

func TestCodecGarbageInput(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	for _, token := range []string{"", "not-a-token", "%%%%", base64.RawURLEncoding.EncodeToString([]byte("short"))} {
		if _, err := codec.Decode(token); !api.IsKind(err, api.KindDecodeError) {
			t.Fatalf("token %q: expected decode_error, got %v", token, err)
		}
	}
}

func TestCodecMissingBundleFailsAtFirstUse(t *testing.T) {
	t.Parallel()

	codec := NewCodec(filepath.Join(t.TempDir(), "absent.pem"))
	if _, err := codec.Encode(Record{Username: "a@example.com", Password: "pw"}); err == nil {
		t.Fatal("expected encode to fail without a bundle")
	}
	if _, err := codec.Decode("anything"); !api.IsKind(err, api.KindDecodeError) {
		t.Fatal("expected decode_error without a bundle")
	}
}

func TestGenerateBundleRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.pem")
	if err := GenerateBundle(path, false); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := GenerateBundle(path, false); err == nil {
		t.Fatal("expected refusal to overwrite existing bundle")
	}
	if err := GenerateBundle(path, true); err != nil {
		t.Fatalf("forced regenerate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat bundle: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 bundle, got %v", info.Mode().Perm())
	}
}
