package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSubject(t *testing.T) {
	testCases := map[string]string{
		"executed_query": "debughawk.records.executed_query",
		"Cache":          "debughawk.records.cache",
		"my.plugin":      "debughawk.records.my_plugin",
		"a b*>":          "debughawk.records.a_b__",
		"":               "debughawk.records.unknown",
	}
	for in, want := range testCases {
		assert.Equal(t, want, RecordSubject(in), in)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), SubjectRecords, []byte("x")))
	assert.NoError(t, p.Close())
}
