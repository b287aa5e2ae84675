package stores

import (
	"context"
	"testing"

	"collabcanvas/stores/filesystem"
	"collabcanvas/stores/memory"
	"collabcanvas/stores/sqlite"
)

func TestGetStore(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"default", map[string]string{"STORAGE_TYPE": ""}, "memory"},
		{"filesystem", map[string]string{"STORAGE_TYPE": "filesystem", "LOCAL_STORAGE_PATH": t.TempDir()}, "filesystem"},
		{"sqlite", map[string]string{"STORAGE_TYPE": "sqlite", "DATA_SOURCE_NAME": ":memory:"}, "sqlite"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			store, err := GetStore(context.Background())
			if err != nil {
				t.Fatalf("GetStore() failed: %v", err)
			}

			var got string
			switch s := store.(type) {
			case *memory.Store:
				got = "memory"
			case *filesystem.Store:
				got = "filesystem"
			case *sqlite.Store:
				got = "sqlite"
				s.Close()
			}
			if got != tc.want {
				t.Errorf("GetStore() = %T, want %s", store, tc.want)
			}
		})
	}
}

func TestGetStore_MissingSettings(t *testing.T) {
	for _, typ := range []string{"postgres", "s3"} {
		t.Run(typ, func(t *testing.T) {
			t.Setenv("STORAGE_TYPE", typ)
			t.Setenv("DATABASE_URL", "")
			t.Setenv("S3_BUCKET_NAME", "")
			if _, err := GetStore(context.Background()); err == nil {
				t.Errorf("GetStore() with %s and no settings succeeded", typ)
			}
		})
	}
}
