/*
Copyright 2024 The Strusgo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// strusctl administers a storage instance from the command line:
// create, insert, delete, query, stats.
//
// Usage:
//
//	strusctl create -s "path=/tmp/st; metadata=doclen:uint32"
//	strusctl insert -s "path=/tmp/st" doc1 "a quick brown fox"
//	strusctl query  -s "path=/tmp/st" fox
//	strusctl delete -s "path=/tmp/st" doc1
//	strusctl stats  -s "path=/tmp/st"
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"strusgo/storage"
)

const searchType = "word"
const forwardType = "orig"

type command struct {
	help string
	run  func(args []string) error
}

var commands = map[string]command{}

func init() {
	commands["create"] = command{"create a new storage", runCreate}
	commands["insert"] = command{"insert or replace a document", runInsert}
	commands["delete"] = command{"delete a document", runDelete}
	commands["query"] = command{"list documents containing a term", runQuery}
	commands["stats"] = command{"print storage statistics", runStats}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: strusctl <mode> [modeopts] [modeargs]\n\nModes:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].help)
	}
	os.Exit(1)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		log.Fatalf("strusctl %s: %v", os.Args[1], err)
	}
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("s", "", "storage configuration, e.g. \"path=/tmp/st; metadata=doclen:uint32\"")
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	conf := configFlag(fs)
	fs.Parse(args)
	s, err := storage.Create(*conf)
	if err != nil {
		return err
	}
	return s.Close()
}

// tokenize splits text into lowercased whitespace-separated tokens;
// runInsert numbers them from position 1.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func runInsert(args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	conf := configFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("expected <docid> <text>")
	}
	docID, text := fs.Arg(0), fs.Arg(1)

	s, err := storage.Open(*conf)
	if err != nil {
		return err
	}
	defer s.Close()

	tx := s.NewTransaction()
	doc, err := tx.InsertDocument(docID)
	if err != nil {
		return err
	}
	tokens := tokenize(text)
	for i, tok := range tokens {
		pos := uint32(i + 1)
		if err := doc.AddSearchTerm(searchType, tok, pos); err != nil {
			return err
		}
		if err := doc.AddForwardTerm(forwardType, tok, pos); err != nil {
			return err
		}
	}
	if schema := s.Schema(); schema != nil {
		if _, ok := schema.Index("doclen"); ok {
			if err := doc.SetMetaData("doclen", float64(len(tokens))); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Printf("inserted %s (%d terms)\n", docID, len(tokens))
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	conf := configFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected <docid>")
	}
	s, err := storage.Open(*conf)
	if err != nil {
		return err
	}
	defer s.Close()

	tx := s.NewTransaction()
	if err := tx.DeleteDocument(fs.Arg(0)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", fs.Arg(0))
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	conf := configFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected <term>")
	}
	term := strings.ToLower(fs.Arg(0))

	s, err := storage.Open(*conf)
	if err != nil {
		return err
	}
	defer s.Close()

	it, err := s.PostingIterator(searchType, term)
	if err != nil {
		return err
	}
	defer it.Close()

	df, err := it.DocumentFrequency()
	if err != nil {
		return err
	}
	fmt.Printf("term %q: df=%d\n", term, df)
	docno, err := it.SkipDoc(1)
	for err == nil && docno != 0 {
		docID, derr := s.DocidOf(docno)
		if derr != nil {
			return derr
		}
		ff, ferr := it.Frequency()
		if ferr != nil {
			return ferr
		}
		positions, perr := it.Positions()
		if perr != nil {
			return perr
		}
		fmt.Printf("  %s ff=%d positions=%v\n", docID, ff, positions)
		docno, err = it.SkipDoc(docno + 1)
	}
	return err
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	conf := configFlag(fs)
	fs.Parse(args)
	s, err := storage.Open(*conf)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("documents: %d\n", s.NofDocuments())
	if schema := s.Schema(); schema != nil {
		cols := make([]string, len(schema.Names))
		for i, name := range schema.Names {
			cols[i] = fmt.Sprintf("%s:%s", name, schema.Types[i])
		}
		fmt.Printf("metadata:  %s\n", strings.Join(cols, ", "))
	}
	return nil
}
