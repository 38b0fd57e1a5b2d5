//go:build !unix

package repository

// dirLock はflockのない環境ではプロセス内の排他だけになる。
type dirLock struct{}

func lockDir(string, bool) (*dirLock, error) { return &dirLock{}, nil }

func (*dirLock) unlock() {}
