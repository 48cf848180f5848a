package store

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestTransactionsUnsupported(t *testing.T) {
	standalone := mongo.CommandError{
		Code:    20,
		Name:    "IllegalOperation",
		Message: "Transaction numbers are only allowed on a replica set member or mongos",
	}
	cases := []struct {
		desc string
		err  error
		want bool
	}{
		{"standalone server", standalone, true},
		{"wrapped", fmt.Errorf("with transaction: %w", standalone), true},
		{"other illegal operation", mongo.CommandError{Code: 20, Message: "cannot do that"}, false},
		{"write conflict", mongo.CommandError{Code: 112, Name: "WriteConflict"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := transactionsUnsupported(tc.err); got != tc.want {
				t.Fatalf("transactionsUnsupported(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
