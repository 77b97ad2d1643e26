package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/debughawk/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestEvent_RecordRequiresExactlyOneVariant(t *testing.T) {
	_, err := model.Event{}.Record()
	assert.ErrorIs(t, err, model.ErrNoVariant)

	_, err = model.Event{
		Log:   &model.Log{Level: "Info"},
		Cache: &model.Cache{Operation: "Hit"},
	}.Record()
	assert.ErrorIs(t, err, model.ErrMultipleVariant)

	assert.Equal(t, model.Kind(""), model.Event{}.Kind())
	assert.Equal(t, model.KindLog, model.Event{Log: &model.Log{}}.Kind())
}

func TestTable_Record(t *testing.T) {
	rec, err := model.Event{Table: &model.Table{
		Label: "Order",
		Data:  map[string]any{"id": float64(7)},
	}}.Record()
	require.NoError(t, err)
	assert.Equal(t, "Order", rec.Label)
	assert.JSONEq(t, `{"id":7}`, rec.Content)
	assert.Equal(t, model.ContentJSON, rec.ContentType)
}

func TestFormatQueryTime(t *testing.T) {
	testCases := []struct {
		ms   float64
		want string
	}{
		{ms: 0.5, want: "0.500 ms"},
		{ms: 0, want: "0.000 ms"},
		{ms: 1, want: "1.00 ms"},
		{ms: 12.5, want: "12.50 ms"},
		{ms: 999.99, want: "999.99 ms"},
		{ms: 1000, want: "1.00 s"},
		{ms: 1500, want: "1.50 s"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, model.FormatQueryTime(tc.ms))
		})
	}
}

func TestQuery_Operation(t *testing.T) {
	assert.Equal(t, "SELECT", (&model.Query{SQL: "  select * from users"}).Operation())
	assert.Equal(t, "INSERT", (&model.Query{SQL: "insert\tinto t values (1)"}).Operation())
	assert.Equal(t, "SQL", (&model.Query{SQL: "   "}).Operation())
}

func TestQuery_RecordWithoutDuration(t *testing.T) {
	rec, err := model.Event{Query: &model.Query{SQL: "DELETE FROM jobs"}}.Record()
	require.NoError(t, err)
	assert.Equal(t, "DELETE", rec.Label)
	assert.Equal(t, "", rec.Description)
	assert.Equal(t, "DELETE FROM jobs", rec.Content)
	assert.Equal(t, model.ContentSQL, rec.ContentType)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", model.Truncate("short", 100))

	long := strings.Repeat("x", 150)
	got := model.Truncate(long, 100)
	assert.Len(t, []rune(got), 100)
	assert.True(t, strings.HasSuffix(got, "..."))

	multibyte := strings.Repeat("é", 120)
	got = model.Truncate(multibyte, 100)
	assert.Len(t, []rune(got), 100)
}

func TestException_Markdown(t *testing.T) {
	x := &model.Exception{
		Class:   "RuntimeError",
		Message: "boom",
		File:    "/app/main.php",
		Line:    10,
		StackTrace: []model.Frame{
			{File: "/app/a.php", Line: 3, Function: "run", Class: ptr("App\\Job")},
			{File: "/app/b.php", Line: 7, Function: "main"},
		},
	}

	md := x.Markdown()
	assert.Contains(t, md, "1. App\\Job::run() at /app/a.php:3\n")
	assert.Contains(t, md, "2. main() at /app/b.php:7\n")
	assert.Less(t, strings.Index(md, "1. "), strings.Index(md, "2. "))
	assert.Equal(t, "RuntimeError: boom", x.Describe())

	x.Message = ""
	assert.Equal(t, "RuntimeError", x.Describe())
}

func TestCache_Describe(t *testing.T) {
	testCases := []struct {
		operation string
		want      string
	}{
		{operation: "Hit", want: "Cache hit for: user:1"},
		{operation: "Missed", want: "Cache miss for: user:1"},
		{operation: "Key written", want: "Cache write: user:1"},
		{operation: "Forgotten", want: "Cache key forgotten: user:1"},
		{operation: "Flushed", want: "Flushed (user:1)"},
	}

	for _, tc := range testCases {
		t.Run(tc.operation, func(t *testing.T) {
			c := &model.Cache{Operation: tc.operation, Key: "user:1"}
			assert.Equal(t, tc.want, c.Describe())
		})
	}
}

func TestApplicationLog_RecordChannel(t *testing.T) {
	rec, err := model.Event{ApplicationLog: &model.ApplicationLog{
		Level:   "Error",
		Message: "payment failed",
		Channel: ptr("billing"),
	}}.Record()
	require.NoError(t, err)
	assert.Equal(t, "Error", rec.Label)
	assert.Equal(t, "[billing] payment failed", rec.Description)
	assert.Equal(t, model.ContentJSON, rec.ContentType)
	assert.JSONEq(t, `{"level":"Error","message":"payment failed","channel":"billing"}`, rec.Content)
}

func TestStringify(t *testing.T) {
	s, err := model.Stringify(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = model.Stringify(`{"raw":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"raw":true}`, s)

	s, err = model.Stringify(map[string]any{"id": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, `{"id":7}`, s)
}

func TestContentType_Valid(t *testing.T) {
	assert.True(t, model.ContentJSON.Valid())
	assert.True(t, model.ContentCustom.Valid())
	assert.False(t, model.ContentType("html").Valid())
}
