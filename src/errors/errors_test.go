package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetErrorUnwrap(t *testing.T) {
	nf := &NotFoundError{Name: "nowhere_intercites"}
	err := fmt.Errorf("load: %w", NewDatasetError("nowhere_intercites", nf))

	var de *DatasetError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "nowhere_intercites", de.Dataset)

	var target *NotFoundError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "nowhere_intercites", target.Name)
}

func TestSchemaErrorMessage(t *testing.T) {
	err := &SchemaError{Dataset: "albi_intercites", Missing: []string{"Date", "Nombre de trains annulés"}}
	assert.Contains(t, err.Error(), "albi_intercites")
	assert.Contains(t, err.Error(), "Date, Nombre de trains annulés")
}

func TestWarningsOrderAndZeroSkip(t *testing.T) {
	got := Warnings(map[Reason]int{
		ReasonRateOutOfRange:  1,
		ReasonSelfLoop:        3,
		ReasonMissingEndpoint: 0,
	})
	assert.Equal(t, []ValidationWarning{
		{Reason: ReasonSelfLoop, Count: 3},
		{Reason: ReasonRateOutOfRange, Count: 1},
	}, got)
}
