package htmlfix

import (
	"bufio"
	"os"
	"strconv"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"
)

// BackupSuffix 备份文件后缀
const BackupSuffix = ".bak"

// 同名备份已存在时最多尝试的编号
const maxBackupAttempts = 100

// ErrBackupExists 找不到可用的备份文件名
var ErrBackupExists = errors.Errorf("no free backup name")

// writeInPlace 截断并原地写入，符号链接会写到其指向的文件，失败时写回 original
// keepBackup 为 true 时先把 original 复制到一个新的备份文件，不覆盖已有文件
func writeInPlace(fs afero.Fs, path string, original, data []byte, perm os.FileMode, keepBackup bool) (string, error) {
	var backupPath string
	if keepBackup {
		var err error
		backupPath, err = createBackup(fs, path, original, perm)
		if err != nil {
			return "", err
		}
	}

	if err := overwrite(fs, path, data); err != nil {
		if restoreErr := overwrite(fs, path, original); restoreErr != nil {
			return backupPath, errors.WrapPrefix(err, "write "+path+" (restore failed: "+restoreErr.Error()+")", 0)
		}
		return backupPath, errors.WrapPrefix(err, "write "+path, 0)
	}
	return backupPath, nil
}

func overwrite(fs afero.Fs, path string, data []byte) error {
	out, err := fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(out)
	if _, err := writer.Write(data); err != nil {
		out.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// createBackup 依次尝试 path.bak、path.bak.1 ... 用 O_EXCL 创建，已有文件保持不动
func createBackup(fs afero.Fs, path string, data []byte, perm os.FileMode) (string, error) {
	for i := 0; i < maxBackupAttempts; i++ {
		name := path + BackupSuffix
		if i > 0 {
			name += "." + strconv.Itoa(i)
		}

		out, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", errors.WrapPrefix(err, "backup "+path, 0)
		}

		_, err = out.Write(data)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = fs.Remove(name)
			return "", errors.WrapPrefix(err, "backup "+path, 0)
		}
		return name, nil
	}
	return "", errors.WrapPrefix(ErrBackupExists, path, 0)
}
