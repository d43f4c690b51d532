package secure

import (
	"bytes"
	"testing"
)

func TestBothSidesDeriveTheSameChannel(t *testing.T) {
	device, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	phone, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}

	deviceSession, err := NewSession(device.Private, phone.Public)
	if err != nil {
		t.Fatalf("device NewSession failed: %v", err)
	}
	phoneSession, err := NewSession(phone.Private, device.Public)
	if err != nil {
		t.Fatalf("phone NewSession failed: %v", err)
	}

	payload := []byte(`{"ssid":"home-net","password":"hunter22"}`)
	sealed, err := phoneSession.Seal(payload)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	opened, err := deviceSession.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Errorf("roundtrip = %q, want %q", opened, payload)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	a, _ := NewKeyPair()
	b, _ := NewKeyPair()
	session, err := NewSession(a.Private, b.Public)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	sealed, err := session.Seal([]byte("credentials"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Flip a character somewhere past the base64 header
	tampered := []byte(sealed)
	if tampered[10] == 'A' {
		tampered[10] = 'B'
	} else {
		tampered[10] = 'A'
	}

	if _, err := session.Open(string(tampered)); err == nil {
		t.Fatal("Open accepted a tampered payload")
	}
}

func TestOpenRejectsWrongSession(t *testing.T) {
	a, _ := NewKeyPair()
	b, _ := NewKeyPair()
	c, _ := NewKeyPair()

	good, _ := NewSession(a.Private, b.Public)
	wrong, _ := NewSession(c.Private, b.Public)

	sealed, err := good.Seal([]byte("credentials"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := wrong.Open(sealed); err == nil {
		t.Fatal("Open accepted a payload from a different session")
	}
}

func TestParsePublicKey(t *testing.T) {
	kp, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}

	parsed, err := ParsePublicKey(kp.PublicKeyString())
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if !bytes.Equal(parsed, kp.Public) {
		t.Error("parsed key differs from original")
	}

	if _, err := ParsePublicKey("not base64!!!"); err == nil {
		t.Error("ParsePublicKey accepted invalid base64")
	}
	if _, err := ParsePublicKey("c2hvcnQ="); err == nil {
		t.Error("ParsePublicKey accepted a short key")
	}
}

func TestSealProducesFreshNonces(t *testing.T) {
	a, _ := NewKeyPair()
	b, _ := NewKeyPair()
	session, _ := NewSession(a.Private, b.Public)

	one, err := session.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	two, err := session.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if one == two {
		t.Error("two Seal calls produced identical ciphertext")
	}
}
