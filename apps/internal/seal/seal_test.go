// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package seal

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func TestSealOpen(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte(`{"AccessToken":{}}`)

	sealed, err := s.Seal(plaintext, "uid.utid")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("TestSealOpen: sealed output contains the plaintext")
	}

	got, err := s.Open(sealed, "uid.utid")
	if err != nil {
		t.Fatalf("TestSealOpen: got err == %s, want err == nil", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("TestSealOpen: got %q, want %q", got, plaintext)
	}
}

func TestOpenFailures(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := s.Seal([]byte("cache"), "a")
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	badVersion := append([]byte(nil), sealed...)
	badVersion[0] = 9

	tests := []struct {
		desc string
		blob []byte
		key  string
	}{
		{desc: "other partition", blob: sealed, key: "b"},
		{desc: "tampered", blob: tampered, key: "a"},
		{desc: "unknown version", blob: badVersion, key: "a"},
		{desc: "truncated", blob: sealed[:10], key: "a"},
		{desc: "plaintext", blob: []byte(`{"AccessToken":{}}`), key: "a"},
	}
	for _, test := range tests {
		if _, err := s.Open(test.blob, test.key); !errors.Is(err, ErrOpen) {
			t.Errorf("TestOpenFailures(%s): got err == %v, want ErrOpen", test.desc, err)
		}
	}
}

func TestNilSealerPassesThrough(t *testing.T) {
	var s *Sealer
	b := []byte("cache")
	sealed, err := s.Seal(b, "k")
	if err != nil || !bytes.Equal(sealed, b) {
		t.Errorf("TestNilSealerPassesThrough(Seal): got %q, %v", sealed, err)
	}
	opened, err := s.Open(b, "k")
	if err != nil || !bytes.Equal(opened, b) {
		t.Errorf("TestNilSealerPassesThrough(Open): got %q, %v", opened, err)
	}
}

func TestFromBase64(t *testing.T) {
	s, err := FromBase64("")
	if err != nil || s != nil {
		t.Errorf("TestFromBase64(empty): got %v, %v; want nil, nil", s, err)
	}
	if _, err := FromBase64("not base64!"); err == nil {
		t.Errorf("TestFromBase64(garbage): got err == nil")
	}
	if _, err := FromBase64(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Errorf("TestFromBase64(short key): got err == nil")
	}
	if s, err := FromBase64(base64.StdEncoding.EncodeToString(testKey)); err != nil || s == nil {
		t.Errorf("TestFromBase64(valid): got %v, %v", s, err)
	}
}
