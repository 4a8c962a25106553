// Package mocks provides testify mocks of the engine interfaces, for driving
// the client layer into engine failure paths.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/eigerco/strata/pkg/db/engine"
)

// MockEngine implements engine.Engine for testing
type MockEngine struct {
	mock.Mock
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Name() string {
	return "mock"
}

func (m *MockEngine) Open(path string, opts engine.Options) (engine.DB, error) {
	args := m.Called(path, opts)
	return dbArg(args, 0), args.Error(1)
}

func (m *MockEngine) OpenReadOnly(path string, opts engine.Options, errorIfLogExists bool) (engine.DB, error) {
	args := m.Called(path, opts, errorIfLogExists)
	return dbArg(args, 0), args.Error(1)
}

func (m *MockEngine) OpenTransactional(path string, opts engine.Options) (engine.DB, error) {
	args := m.Called(path, opts)
	return dbArg(args, 0), args.Error(1)
}

func dbArg(args mock.Arguments, i int) engine.DB {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(engine.DB)
}

// MockDB implements engine.DB for testing
type MockDB struct {
	mock.Mock
}

func NewMockDB() *MockDB {
	return &MockDB{}
}

func (m *MockDB) Put(wo engine.WriteOptions, key, value []byte) error {
	args := m.Called(wo, key, value)
	return args.Error(0)
}

func (m *MockDB) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	args := m.Called(ro, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDB) Delete(wo engine.WriteOptions, key []byte) error {
	args := m.Called(wo, key)
	return args.Error(0)
}

func (m *MockDB) KeyMayExist(ro engine.ReadOptions, key []byte) bool {
	args := m.Called(ro, key)
	return args.Bool(0)
}

func (m *MockDB) NewBatch() engine.Batch {
	args := m.Called()
	return args.Get(0).(engine.Batch)
}

func (m *MockDB) Write(wo engine.WriteOptions, b engine.Batch) error {
	args := m.Called(wo, b)
	return args.Error(0)
}

func (m *MockDB) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	args := m.Called(ro)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Iterator), args.Error(1)
}

func (m *MockDB) NewSnapshot() (engine.Snapshot, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Snapshot), args.Error(1)
}

func (m *MockDB) IsTransactional() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockDB) BeginTransaction(wo engine.WriteOptions) (engine.Transaction, error) {
	args := m.Called(wo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Transaction), args.Error(1)
}

func (m *MockDB) CompactRange(start, end []byte) error {
	args := m.Called(start, end)
	return args.Error(0)
}

func (m *MockDB) Flush(wait bool) error {
	args := m.Called(wait)
	return args.Error(0)
}

func (m *MockDB) Property(name string) (string, bool) {
	args := m.Called(name)
	return args.String(0), args.Bool(1)
}

func (m *MockDB) ApproximateSizes(ranges []engine.Range) ([]uint64, error) {
	args := m.Called(ranges)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockDB) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTransaction implements engine.Transaction for testing
type MockTransaction struct {
	mock.Mock
}

func NewMockTransaction() *MockTransaction {
	return &MockTransaction{}
}

func (m *MockTransaction) Put(key, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockTransaction) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	args := m.Called(ro, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTransaction) GetForUpdate(ro engine.ReadOptions, key []byte) ([]byte, error) {
	args := m.Called(ro, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTransaction) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockTransaction) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	args := m.Called(ro)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Iterator), args.Error(1)
}

func (m *MockTransaction) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) SetSavePoint() {
	m.Called()
}

func (m *MockTransaction) RollbackToSavePoint() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockIterator implements engine.Iterator for testing
type MockIterator struct {
	mock.Mock
}

func NewMockIterator() *MockIterator {
	return &MockIterator{}
}

func (m *MockIterator) Valid() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockIterator) SeekToFirst() {
	m.Called()
}

func (m *MockIterator) SeekToLast() {
	m.Called()
}

func (m *MockIterator) Seek(target []byte) {
	m.Called(target)
}

func (m *MockIterator) SeekForPrev(target []byte) {
	m.Called(target)
}

func (m *MockIterator) Next() {
	m.Called()
}

func (m *MockIterator) Prev() {
	m.Called()
}

func (m *MockIterator) Key() []byte {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]byte)
}

func (m *MockIterator) Value() []byte {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]byte)
}

func (m *MockIterator) Status() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockIterator) Close() error {
	args := m.Called()
	return args.Error(0)
}
