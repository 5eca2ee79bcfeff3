package utils

import (
	"os"
	"path/filepath"
)

func FileExist(path string) bool {
	_, err := os.Lstat(path)
	return !os.IsNotExist(err)
}

// GetFilePath 按如下顺序查找 配置文件, 找不到时返回空字符串:
//  0. 绝对路径 直接返回
//  1. 工作目录
//  2. 可执行文件所在目录
//  3. 用户配置目录下的 edgetunnel 文件夹, 如 ~/.config/edgetunnel
func GetFilePath(fileName string) string {
	if fileName == "" {
		return ""
	}
	if filepath.IsAbs(fileName) {
		return fileName
	}

	var dirs []string
	if workingDir, err := os.Getwd(); err == nil {
		dirs = append(dirs, workingDir)
	}
	if execFile, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execFile))
	}
	if confDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(confDir, "edgetunnel"))
	}

	for _, d := range dirs {
		p := filepath.Join(d, fileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
