package core

import "testing"

func TestEncodeDecodeVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 16384, 1 << 32, 1<<64 - 1}
	for _, n := range cases {
		encoded := encodeVarint(n)
		got, consumed := decodeVarint(encoded)
		if got != n {
			t.Errorf("decodeVarint(encodeVarint(%d)) = %d", n, got)
		}
		if consumed != len(encoded) {
			t.Errorf("n=%d: consumed %d bytes, want %d", n, consumed, len(encoded))
		}
	}
}

func TestPbEncodeBytesSkipsEmpty(t *testing.T) {
	if out := pbEncodeBytes(1, nil); out != nil {
		t.Errorf("pbEncodeBytes(nil) = %v, want nil", out)
	}
	if out := pbEncodeBytes(1, []byte{}); out != nil {
		t.Errorf("pbEncodeBytes(empty) = %v, want nil", out)
	}
}

func TestPbEncodeVarintSkipsZero(t *testing.T) {
	if out := pbEncodeVarint(1, 0); out != nil {
		t.Errorf("pbEncodeVarint(0) = %v, want nil", out)
	}
}

func TestPbEncodeBoolOnlyEmitsTrue(t *testing.T) {
	if out := pbEncodeBool(5, false); out != nil {
		t.Errorf("pbEncodeBool(false) = %v, want nil", out)
	}
	out := pbEncodeBool(5, true)
	if out == nil {
		t.Fatal("pbEncodeBool(true) must emit a field")
	}
	fieldNum := int(out[0]) >> 3
	if fieldNum != 5 {
		t.Errorf("field number = %d, want 5", fieldNum)
	}
}

func TestEncodeClientHelloWrapsEphemeral(t *testing.T) {
	ephemeral := make([]byte, 32)
	for i := range ephemeral {
		ephemeral[i] = byte(i)
	}
	encoded := EncodeClientHello(ephemeral)

	inner, err := findField(encoded, fieldClientHello)
	if err != nil {
		t.Fatalf("clientHello field missing: %v", err)
	}
	got, err := findField(inner, fieldEphemeral)
	if err != nil {
		t.Fatalf("ephemeral field missing: %v", err)
	}
	if string(got) != string(ephemeral) {
		t.Fatalf("ephemeral mismatch: got %x, want %x", got, ephemeral)
	}
}

func TestDecodeServerHelloRoundTrip(t *testing.T) {
	ephemeral := make([]byte, 32)
	for i := range ephemeral {
		ephemeral[i] = byte(64 + i)
	}
	static := []byte("static-ciphertext")
	payload := []byte("payload-ciphertext")

	var serverHello []byte
	serverHello = append(serverHello, pbEncodeBytes(fieldEphemeral, ephemeral)...)
	serverHello = append(serverHello, pbEncodeBytes(fieldStatic, static)...)
	serverHello = append(serverHello, pbEncodeBytes(fieldPayload, payload)...)
	wrapped := pbEncodeBytes(fieldServerHello, serverHello)

	got, err := DecodeServerHello(wrapped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Ephemeral) != string(ephemeral) {
		t.Errorf("ephemeral mismatch")
	}
	if string(got.Static) != string(static) {
		t.Errorf("static mismatch")
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("payload mismatch")
	}
}

func TestDecodeServerHelloRejectsShortEphemeral(t *testing.T) {
	var serverHello []byte
	serverHello = append(serverHello, pbEncodeBytes(fieldEphemeral, []byte("too-short"))...)
	wrapped := pbEncodeBytes(fieldServerHello, serverHello)

	if _, err := DecodeServerHello(wrapped); err == nil {
		t.Fatal("expected error for short ephemeral key")
	}
}

func TestDecodeServerHelloMissingFieldFails(t *testing.T) {
	wrapped := pbEncodeBytes(fieldClientHello, []byte("wrong wrapper"))
	if _, err := DecodeServerHello(wrapped); err == nil {
		t.Fatal("expected error when serverHello field is absent")
	}
}

func TestDecodeNoiseCertificateRoundTrip(t *testing.T) {
	var details []byte
	details = append(details, pbEncodeBytes(fieldDetailsIssuer, []byte("issuer-name"))...)
	details = append(details, pbEncodeBytes(fieldDetailsKey, []byte("cert-static-key-32-bytes--------"))...)
	details = append(details, pbEncodeVarint(fieldDetailsExpires, 1999999999)...)

	var cert []byte
	cert = append(cert, pbEncodeBytes(fieldCertDetails, details)...)
	cert = append(cert, pbEncodeBytes(fieldCertSignature, []byte("sig-bytes"))...)

	got, err := DecodeNoiseCertificate(cert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Details.Issuer != "issuer-name" {
		t.Errorf("issuer = %q, want %q", got.Details.Issuer, "issuer-name")
	}
	if got.Details.Expires == nil || *got.Details.Expires != 1999999999 {
		t.Errorf("expires mismatch: %+v", got.Details.Expires)
	}
	if string(got.Signature) != "sig-bytes" {
		t.Errorf("signature mismatch")
	}
}

func TestEncodeIntDecodeIntBytesRoundTrip(t *testing.T) {
	cases := []struct {
		n     uint64
		width int
	}{
		{0, 1}, {255, 1}, {256, 2}, {65535, 2}, {1 << 24, 4}, {1<<32 - 1, 4},
	}
	for _, c := range cases {
		encoded := encodeInt(c.n, c.width)
		if len(encoded) != c.width {
			t.Fatalf("encodeInt(%d,%d) length = %d", c.n, c.width, len(encoded))
		}
		got := decodeIntBytes(encoded)
		if got != c.n {
			t.Errorf("decodeIntBytes(encodeInt(%d,%d)) = %d", c.n, c.width, got)
		}
	}
}
