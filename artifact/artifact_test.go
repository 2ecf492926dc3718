// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/pipeline/pipelinetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model(version string, at time.Time) *classifier.Model {
	m := pipelinetest.Model(version)
	m.TrainedAt = at

	return m
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "models"))

	in := model("v1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, in.Version, out.Version)
	assert.Equal(t, in.Labels, out.Labels)
	assert.Equal(t, in.Weights, out.Weights)
	assert.True(t, in.TrainedAt.Equal(out.TrainedAt))

	st, err := os.Stat(filepath.Join(s.root, "v1"+extension))
	require.NoError(t, err)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, st.Size(), infos[0].Size)
}

func TestFileStoreLatest(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	_, err := s.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, model("b", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, model("a", base.Add(2*time.Hour))))
	require.NoError(t, s.Save(ctx, model("c", base)))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", latest.Version)

	infos, err := s.List(ctx)
	require.NoError(t, err)

	var versions []string
	for _, i := range infos {
		versions = append(versions, i.Version)
	}

	assert.Equal(t, []string{"a", "b", "c"}, versions)

	// replacing keeps a single entry
	require.NoError(t, s.Save(ctx, model("c", base.Add(3*time.Hour))))
	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "c", infos[0].Version)
}

func TestFileStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "../etc/passwd")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	bad := model("bad", time.Now())
	bad.Bias = nil
	require.Error(t, s.Save(ctx, bad))

	require.Error(t, s.Save(ctx, model("a/b", time.Now())))

	require.NoError(t, os.WriteFile(filepath.Join(s.root, "broken"+extension), []byte("nope"), 0o600))
	_, err = s.Load(ctx, "broken")
	require.Error(t, err)
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, model("old", base)))
	require.NoError(t, s.Save(ctx, model("new", base.Add(time.Minute))))

	e := classifier.NewEngine()
	require.NoError(t, e.Load(ctx, Loader(s, "")))
	assert.Equal(t, "new", e.Model().Version)

	require.NoError(t, e.Load(ctx, Loader(s, "old")))
	assert.Equal(t, "old", e.Model().Version)

	require.Error(t, e.Load(ctx, Loader(s, "gone")))
}

func TestValidateVersion(t *testing.T) {
	for _, v := range []string{"v1", "2025-03-01T10.00", "model_7"} {
		assert.NoError(t, ValidateVersion(v), v)
	}

	for _, v := range []string{"", ".hidden", "a/b", "a b", "..", "-x"} {
		assert.Error(t, ValidateVersion(v), v)
	}
}

func TestObjectNames(t *testing.T) {
	assert.Equal(t, "models/v3.json.gz", objectName("v3"))

	v, ok := versionOf(objectName("v3"))
	assert.True(t, ok)
	assert.Equal(t, "v3", v)

	for _, key := range []string{"other/v3.json.gz", "models/v3.json", "models/.json.gz", "models/a/b.json.gz"} {
		_, ok := versionOf(key)
		assert.False(t, ok, key)
	}
}

func TestMinioConfig(t *testing.T) {
	_, err := NewMinioStore(context.Background(), MinioConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)
}
