//go:build unix

package repository

import (
	"fmt"
	"os"
	"syscall"
)

// dirLock は保存先ディレクトリの .lock ファイルに対するflock。
// 同じディレクトリを開いた別プロセスとの間で読み書きを直列化する。
type dirLock struct {
	f *os.File
}

func lockDir(path string, exclusive bool) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ロックファイルを開けません: %w", err)
	}
	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, fmt.Errorf("ロックの取得に失敗しました: %w", err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) unlock() {
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
}
