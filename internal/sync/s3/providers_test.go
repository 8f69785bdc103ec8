package s3

import "testing"

func TestNewAWSRegionDefaults(t *testing.T) {
	client := NewAWS("bucket", "ak", "sk", "")
	if client.cfg.Endpoint != "s3.amazonaws.com" || client.cfg.Region != "us-east-1" {
		t.Errorf("expected default region endpoint, got %+v", client.cfg)
	}

	client = NewAWS("bucket", "ak", "sk", "eu-central-1")
	if client.cfg.Endpoint != "s3.eu-central-1.amazonaws.com" {
		t.Errorf("expected regional endpoint, got %s", client.cfg.Endpoint)
	}

	// Unknown regions fall back to the global endpoint.
	client = NewAWS("bucket", "ak", "sk", "mars-north-1")
	if client.cfg.Endpoint != "s3.amazonaws.com" {
		t.Errorf("expected global endpoint fallback, got %s", client.cfg.Endpoint)
	}
}

func TestNewR2RequiresAccount(t *testing.T) {
	if _, err := NewR2("", "bucket", "ak", "sk"); err == nil {
		t.Error("expected error without account id")
	}

	client, err := NewR2("abc123", "bucket", "ak", "sk")
	if err != nil {
		t.Fatalf("NewR2 failed: %v", err)
	}
	if client.cfg.Endpoint != "abc123.r2.cloudflarestorage.com" {
		t.Errorf("unexpected endpoint: %s", client.cfg.Endpoint)
	}
	if client.cfg.Region != "auto" {
		t.Errorf("expected region auto, got %s", client.cfg.Region)
	}
}

func TestNewMinIOSchemes(t *testing.T) {
	client := NewMinIO("localhost:9000", "bucket", "ak", "sk", false)
	if client.cfg.Endpoint != "http://localhost:9000" {
		t.Errorf("expected http scheme, got %s", client.cfg.Endpoint)
	}
	if !client.cfg.ForcePathStyle {
		t.Error("minio must use path-style URLs")
	}

	client = NewMinIO("https://minio.example.com/", "bucket", "ak", "sk", true)
	if client.cfg.Endpoint != "https://minio.example.com" {
		t.Errorf("expected trimmed https endpoint, got %s", client.cfg.Endpoint)
	}
}
