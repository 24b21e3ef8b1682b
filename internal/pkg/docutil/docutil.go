// Package docutil 提供导入流程使用的文件工具。
package docutil

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FindFiles 递归收集 dir 下扩展名（不区分大小写）在 extensions 中的文件，
// 跳过以 "." 开头的隐藏目录，结果按路径排序。
func FindFiles(dir string, extensions []string) ([]string, error) {
	want := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		want[strings.ToLower(ext)] = struct{}{}
	}

	var files []string
	walk := func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
		default:
			if _, ok := want[strings.ToLower(filepath.Ext(path))]; ok {
				files = append(files, path)
			}
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walk); err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// ReadText 以字符串形式读取整个文件。
func ReadText(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

// DirExists 判断 path 是否为已存在的目录。
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReadZipEntry 返回 ZIP 归档中名为 name 的条目内容，docx 即为此类归档。
func ReadZipEntry(archive, name string) ([]byte, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	i := slices.IndexFunc(r.File, func(f *zip.File) bool { return f.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%s: entry %q not found", archive, name)
	}
	rc, err := r.File[i].Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
