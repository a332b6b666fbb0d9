/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

const (
	commonEnvironment   = "common"
	defaultSQLRootPath  = "configs/sql"
	unorderedFilePrefix = 999
)

var sqlFileOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SQLInitManager runs SQL seed files: <root>/common first, then
// <root>/environments/<environment>, each ordered by its "NNN_" prefix.
// Files are text/templates over the process environment plus ENVIRONMENT
// and TIMESTAMP, and each file runs in its own transaction.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	root        string
	fsys        fs.FS
	logger      Logger
}

// SQLFileInfo is a discovered seed file. Path is relative to the root.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

func NewSQLInitManager(db bun.IDB, environment string, logger Logger) *SQLInitManager {
	if logger == nil {
		logger = GetLogger()
	}
	m := &SQLInitManager{db: db, environment: environment, logger: logger}
	m.SetSQLRootPath(defaultSQLRootPath)
	return m
}

func (s *SQLInitManager) SetSQLRootPath(root string) {
	s.root = root
	s.fsys = os.DirFS(root)
}

// ExecuteInitialization runs every seed file and stops at the first failure.
// The failing file is rolled back; files before it stay applied.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) error {
	files, err := s.GetSQLFiles()
	if err != nil {
		return fmt.Errorf("failed to get SQL files: %w", err)
	}
	s.logger.Info("Seeding database", "environment", s.environment, "root", s.root, "files", len(files))

	for _, file := range files {
		start := time.Now()
		rows, err := s.executeFile(ctx, file)
		if err != nil {
			s.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
			return fmt.Errorf("SQL file execution failed %s: %w", file.Path, err)
		}
		s.logger.Info("SQL file executed", "file", file.Path, "duration", time.Since(start), "rows_affected", rows)
	}
	return nil
}

// GetSQLFiles lists the seed files in execution order. Missing directories
// are skipped.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	groups := []struct{ dir, env string }{
		{commonEnvironment, commonEnvironment},
		{path.Join("environments", s.environment), s.environment},
	}
	var files []SQLFileInfo
	for _, group := range groups {
		found, err := s.filesIn(group.dir, group.env)
		if err != nil {
			return nil, fmt.Errorf("failed to read SQL files from %s: %w", path.Join(s.root, group.dir), err)
		}
		files = append(files, found...)
	}
	return files, nil
}

func (s *SQLInitManager) filesIn(dir, environment string) ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	err := fs.WalkDir(s.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".sql") {
			return nil
		}
		files = append(files, SQLFileInfo{Path: p, Name: d.Name(), Order: parseFileOrder(d.Name()), Environment: environment})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	slices.SortStableFunc(files, func(a, b SQLFileInfo) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Name, b.Name))
	})
	return files, err
}

func parseFileOrder(filename string) int {
	if m := sqlFileOrderPattern.FindStringSubmatch(filename); m != nil {
		if order, err := strconv.Atoi(m[1]); err == nil {
			return order
		}
	}
	return unorderedFilePrefix
}

func (s *SQLInitManager) executeFile(ctx context.Context, file SQLFileInfo) (rows int64, err error) {
	content, err := fs.ReadFile(s.fsys, file.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	rendered, err := s.render(file.Name, string(content))
	if err != nil {
		return 0, err
	}
	statements := splitSQLStatements(rendered)
	err = inTx(ctx, s.db, func(ctx context.Context, db bun.IDB) error {
		for _, stmt := range statements {
			res, err := db.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			n, _ := res.RowsAffected()
			rows += n
		}
		return nil
	})
	return rows, err
}

func (s *SQLInitManager) render(name, content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s.templateVars()); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (s *SQLInitManager) templateVars() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format(time.DateTime)
	return vars
}

// splitSQLStatements drops blank and "--" lines and cuts statements at a
// trailing semicolon. Statement lines are joined with single spaces.
func splitSQLStatements(content string) []string {
	var statements []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			statements = append(statements, strings.Join(current, " "))
			current = current[:0]
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	flush()
	return statements
}
