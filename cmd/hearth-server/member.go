package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/marcus/hearth/internal/api"
	"github.com/marcus/hearth/internal/serverdb"
)

func runMember(args []string) {
	if len(args) == 0 {
		printMemberUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		runMemberAdd(args[1:])
	case "list":
		runMemberList(args[1:])
	case "token":
		runMemberToken(args[1:])
	case "revoke":
		runMemberRevoke(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown member command: %s\n", args[0])
		printMemberUsage()
		os.Exit(1)
	}
}

func printMemberUsage() {
	fmt.Fprintln(os.Stderr, `Usage: hearth-server member <command> [flags]

Commands:
  add <name>     Add a household member and print their first token
  list           List members
  token <name>   Issue another token for a member
  revoke <key>   Revoke a token by key id`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = api.LoadConfig().ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// memberFlags parses the shared flags and returns the single positional arg.
func memberFlags(name string, args []string, wantArg bool) (dbPath, keyName, arg string) {
	fs := flag.NewFlagSet("member "+name, flag.ExitOnError)
	db := fs.String("db", "", "path to hearth.db (default: from HEARTH_DB_PATH or ./data/hearth.db)")
	key := fs.String("name", "cli", "token label")
	fs.Parse(args)

	if wantArg {
		if fs.NArg() != 1 {
			fs.Usage()
			os.Exit(1)
		}
		arg = fs.Arg(0)
	}
	return *db, *key, arg
}

func printToken(member, plaintext string, ak *serverdb.APIKey) {
	fmt.Printf("token for %s\n", member)
	fmt.Printf("  key id: %s\n", ak.ID)
	fmt.Printf("  token:  %s\n", plaintext)
	fmt.Println("\nSave this token now -- it will not be shown again.")
	fmt.Printf("On the member's machine: hearth config set member %s && hearth config set token <token>\n", member)
}

func runMemberAdd(args []string) {
	dbPath, keyName, name := memberFlags("add", args, true)
	store := openDB(dbPath)
	defer store.Close()

	m, err := store.CreateMember(name)
	if err != nil {
		fail("%v", err)
	}
	plaintext, ak, err := store.GenerateAPIKey(m.ID, keyName)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("added %s\n", m.Name)
	printToken(m.Name, plaintext, ak)
}

func runMemberList(args []string) {
	dbPath, _, _ := memberFlags("list", args, false)
	store := openDB(dbPath)
	defer store.Close()

	members, err := store.ListMembers()
	if err != nil {
		fail("%v", err)
	}
	for _, m := range members {
		fmt.Printf("%-16s %s\n", m.Name, m.CreatedAt.Format("2006-01-02"))
	}
}

func runMemberToken(args []string) {
	dbPath, keyName, name := memberFlags("token", args, true)
	store := openDB(dbPath)
	defer store.Close()

	m, err := store.GetMemberByName(name)
	if err != nil {
		fail("%v", err)
	}
	if m == nil {
		fail("member not found: %s", name)
	}
	plaintext, ak, err := store.GenerateAPIKey(m.ID, keyName)
	if err != nil {
		fail("%v", err)
	}
	printToken(m.Name, plaintext, ak)
}

func runMemberRevoke(args []string) {
	dbPath, _, keyID := memberFlags("revoke", args, true)
	store := openDB(dbPath)
	defer store.Close()

	if err := store.RevokeAPIKey(keyID); err != nil {
		fail("%v", err)
	}
	fmt.Printf("revoked %s\n", keyID)
}
