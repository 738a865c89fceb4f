package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeTransaction struct {
	starts, commits, aborts int
	commitErr               error
}

func (f *fakeTransaction) StartTransaction(opts ...*options.TransactionOptions) error {
	f.starts++
	return nil
}

func (f *fakeTransaction) AbortTransaction(ctx context.Context) error {
	f.aborts++
	return nil
}

func (f *fakeTransaction) CommitTransaction(ctx context.Context) error {
	f.commits++
	return f.commitErr
}

func TestRunTransactionCommitsOnce(t *testing.T) {
	txn := &fakeTransaction{}
	calls := 0

	err := runTransaction(context.Background(), txn, func() error { calls++; return nil })

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, txn.commits)
	assert.Zero(t, txn.aborts)
}

func TestRunTransactionDoesNotRetryTransientErrors(t *testing.T) {
	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	txn := &fakeTransaction{}
	calls := 0

	err := runTransaction(context.Background(), txn, func() error { calls++; return transient })

	assert.ErrorAs(t, err, &mongo.CommandError{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, txn.starts)
	assert.Equal(t, 1, txn.aborts)
	assert.Zero(t, txn.commits)
}

func TestRunTransactionDoesNotRetryUnknownCommitResult(t *testing.T) {
	unknown := mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired", Labels: []string{"UnknownTransactionCommitResult"}}
	txn := &fakeTransaction{commitErr: unknown}
	calls := 0

	err := runTransaction(context.Background(), txn, func() error { calls++; return nil })

	assert.ErrorAs(t, err, &mongo.CommandError{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, txn.commits)
}
