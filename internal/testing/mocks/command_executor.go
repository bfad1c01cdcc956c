// Package mocks holds testify mocks shared by package tests.
package mocks

import (
	"context"

	"github.com/fcjr/sdburn/internal/command"
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a testify mock for command.Executor.
//
// Example:
//
//	exec := &mocks.MockCommandExecutor{}
//	exec.On("Output", mock.Anything, command.New("lsblk", "-J")).Return(out, nil)
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Run(ctx context.Context, cmd command.Command) error {
	called := m.Called(ctx, cmd)
	return called.Error(0)
}

func (m *MockCommandExecutor) Output(ctx context.Context, cmd command.Command) ([]byte, error) {
	called := m.Called(ctx, cmd)
	var out []byte
	if v := called.Get(0); v != nil {
		out, _ = v.([]byte)
	}
	return out, called.Error(1)
}

// ByName matches any command with the given program name.
func ByName(name string) any {
	return mock.MatchedBy(func(cmd command.Command) bool {
		return cmd.Name == name
	})
}

// ByArg matches a command with the given program name whose last argument is arg.
func ByArg(name, arg string) any {
	return mock.MatchedBy(func(cmd command.Command) bool {
		return cmd.Name == name && len(cmd.Args) > 0 && cmd.Args[len(cmd.Args)-1] == arg
	})
}
