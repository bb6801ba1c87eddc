package anyllm

import "testing"

func TestNewValidation(t *testing.T) {
	if _, err := New("", "llama3.2"); err == nil {
		t.Error("New with empty providerName: want error")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("New with empty model: want error")
	}
	if _, err := New("carrier-pigeon", "llama3.2"); err == nil {
		t.Error("New with unsupported provider: want error")
	}
}

func TestNewOllama(t *testing.T) {
	p, err := NewOllama("llama3.2")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if p == nil {
		t.Fatal("NewOllama returned nil provider")
	}
}
