package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recophone/api/internal/platform/config"
)

type widget struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

func TestOpen_SQLiteAutoMigrates(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", DSN: "file:open_test?mode=memory&cache=shared"}
	db, err := Open(context.Background(), cfg, zap.NewNop(), &widget{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, db.Create(&widget{ID: "w1", Name: "a"}).Error)
	var got widget
	require.NoError(t, db.First(&got, "id = ?", "w1").Error)
	assert.Equal(t, "a", got.Name)
	assert.NoError(t, Ping(context.Background(), db))
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}, nil)
	require.Error(t, err)
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: "  "}, nil)
	require.Error(t, err)
}

func TestNormalizeDSN(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{`"postgres://u:p@h/db"`, "postgres://u:p@h/db"},
		{"host=h  user=u dbname=d", "host=h user=u dbname=d sslmode=disable"},
		{"host=h user=u dbname=d sslmode=require", "host=h user=u dbname=d sslmode=require"},
		{"recophone.db", "recophone.db"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDSN(tc.in), tc.in)
	}
}

func TestToURLDSN(t *testing.T) {
	got := ToURLDSN("host=db port=5432 user=rp password=secret dbname=recophone sslmode=disable")
	assert.Equal(t, "postgres://rp:secret@db:5432/recophone?sslmode=disable", got)
	assert.Equal(t, "host=db", ToURLDSN("host=db"))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "host=h password=*** dbname=d", MaskDSN("host=h password=secret dbname=d"))
	assert.Equal(t, "postgres://rp:xxxxx@db/recophone", MaskDSN("postgres://rp:secret@db/recophone"))
}
