package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"

	"github.com/vidroom/vidroom/server/provider"
	"github.com/vidroom/vidroom/server/provider/mock_provider"
)

func TestGenerateNewSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_provider.NewMockVideoService(ctrl)
	svc.EXPECT().GetCredentials(gomock.Any()).
		Return(&provider.Credential{SessionID: "S1", Token: "T1", APIKey: "K"}, nil)

	var out bytes.Buffer
	if code := generate(context.Background(), &out, svc, ""); code != 0 {
		t.Fatalf("generate() = %d", code)
	}
	var got provider.Credential
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(provider.Credential{SessionID: "S1", Token: "T1", APIKey: "K"}, got); diff != "" {
		t.Errorf("credential mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateExistingSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_provider.NewMockVideoService(ctrl)
	svc.EXPECT().GenerateToken(gomock.Any(), "S1").Return(&provider.Token{Token: "T2", APIKey: "K"}, nil)

	var out bytes.Buffer
	if code := generate(context.Background(), &out, svc, "S1"); code != 0 {
		t.Fatalf("generate() = %d", code)
	}
	if !bytes.Contains(out.Bytes(), []byte(`"token": "T2"`)) {
		t.Errorf("output = %s", out.String())
	}
}

func TestGenerateFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_provider.NewMockVideoService(ctrl)
	svc.EXPECT().GetCredentials(gomock.Any()).Return(nil, errors.New("boom"))

	var out bytes.Buffer
	if code := generate(context.Background(), &out, svc, ""); code != 1 {
		t.Errorf("generate() = %d, want 1", code)
	}
	if out.Len() != 0 {
		t.Errorf("output on failure: %s", out.String())
	}
}

func TestList(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_provider.NewMockVideoService(ctrl)
	svc.EXPECT().ListArchives(gomock.Any(), "S1").Return(nil, nil)
	svc.EXPECT().ListArchives(gomock.Any(), "S2").Return(nil, &provider.Error{Status: 404})

	var out bytes.Buffer
	if code := list(context.Background(), &out, svc, "S1"); code != 0 || out.String() != "[]\n" {
		t.Errorf("list() = %d, %q", code, out.String())
	}
	if code := list(context.Background(), &out, svc, "S2"); code != 1 {
		t.Errorf("list() = %d, want 1", code)
	}
}
