package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	bes "github.com/88abaa99/go-bes"

	"github.com/urfave/cli"
)

func cmdAlgs(c *cli.Context) error {
	for _, name := range bes.ListNames() {
		fmt.Printf("%s\n", name)
	}
	return nil
}

func parseRevoked(list string) ([]bes.UserID, error) {
	if list == "" {
		return nil, nil
	}
	var revoked []bes.UserID
	for _, field := range strings.Split(list, ",") {
		user, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("bad revoked user %q: %s", field, err)
		}
		revoked = append(revoked, bes.UserID(user))
	}
	return revoked, nil
}

// Runs a whole setup/issue/encrypt/decrypt round trip in memory.
func cmdDemo(c *cli.Context) error {
	name := c.String("scheme")
	nbUsers := uint32(c.Uint("users"))
	revoked, err := parseRevoked(c.String("revoke"))
	if err != nil {
		return err
	}

	masterKey := []byte("masterKey.......")
	sessionKey := []byte("AES256_sessionkey...............")
	sessionIV := []byte("ThisIsAnIV......")
	plaintext := []byte(c.String("message"))

	master, err2 := bes.NewSchemeFromName(name, bes.Master, nbUsers)
	if err2 != nil {
		return err2
	}
	if err2 = master.SetMasterKey(masterKey); err2 != nil {
		return err2
	}
	if err2 = master.Setup(); err2 != nil {
		return err2
	}

	ciphertext, header, err2 := master.Encrypt(
		plaintext, revoked, sessionIV, nil, sessionKey)
	if err2 != nil {
		return err2
	}
	fmt.Printf("scheme:   %s\n", name)
	fmt.Printf("users:    %d\n", nbUsers)
	fmt.Printf("revoked:  %v\n", revoked)
	fmt.Printf("overhead: %d bytes\n", len(ciphertext)-len(plaintext))
	fmt.Printf("header:   %s\n", hex.EncodeToString(header))

	recovered := 0
	for user := bes.UserID(0); uint32(user) < nbUsers; user++ {
		member, err2 := bes.NewSchemeFromName(name, user, nbUsers)
		if err2 != nil {
			return err2
		}
		material, err2 := master.UserKey(user)
		if err2 != nil {
			return err2
		}
		if err2 = member.SetUserKey(material); err2 != nil {
			return err2
		}
		pt, ok, err2 := member.Decrypt(ciphertext, header, sessionIV, nil)
		if err2 != nil {
			return err2
		}
		isRevoked := false
		for _, r := range revoked {
			if r == user {
				isRevoked = true
			}
		}
		if ok != !isRevoked || (ok && string(pt) != string(plaintext)) {
			return fmt.Errorf("user %d: wrong decryption result", user)
		}
		if ok {
			recovered++
		}
	}
	fmt.Printf("recovered by %d of %d users\n", recovered, nbUsers)
	return nil
}

func masterFromContainer(c *cli.Context) (
	bes.Scheme, bes.KeyContainer, error) {
	ctr, err := bes.OpenFSKeyContainer(c.String("path"))
	if err != nil {
		return nil, nil, err
	}
	info := ctr.Info()
	if info == nil {
		ctr.Close()
		return nil, nil, fmt.Errorf("%s: no such container",
			c.String("path"))
	}
	name := strings.TrimRight(string(info.Scheme[:]), "\x00")
	var master bes.Scheme
	var err2 bes.Error
	switch name {
	case "NNL-SD":
		master, err2 = bes.NewSchemeFromName(
			"NNL-SD_AES256-CTR_HMAC-SHA256", bes.Master, info.NbUsers)
	case "SPBE":
		master, err2 = bes.NewSchemeFromName(
			"SPBE_AES256-CTR_HMAC-SHA256", bes.Master, info.NbUsers)
	default:
		err2 = nil
	}
	if master == nil || err2 != nil {
		ctr.Close()
		return nil, nil, fmt.Errorf("unsupported container scheme %q", name)
	}

	masterKey, err := ctr.Material()
	if err != nil {
		ctr.Close()
		return nil, nil, err
	}
	if err = master.SetMasterKey(masterKey); err != nil {
		ctr.Close()
		return nil, nil, err
	}

	// The NNL master caches its label table in the container.
	if nnl, ok := master.(*bes.NNLSD); ok {
		loaded, err := nnl.LoadLabels(ctr)
		if err != nil {
			ctr.Close()
			return nil, nil, err
		}
		if !loaded {
			if err = master.Setup(); err != nil {
				ctr.Close()
				return nil, nil, err
			}
			if err = nnl.StoreLabels(ctr); err != nil {
				ctr.Close()
				return nil, nil, err
			}
		}
	} else if err = master.Setup(); err != nil {
		ctr.Close()
		return nil, nil, err
	}
	return master, ctr, nil
}

func cmdSetup(c *cli.Context) error {
	masterKey, err := hex.DecodeString(c.String("master-key"))
	if err != nil {
		return fmt.Errorf("bad master key: %s", err)
	}
	name := c.String("scheme")
	nbUsers := uint32(c.Uint("users"))

	master, err2 := bes.NewSchemeFromName(name, bes.Master, nbUsers)
	if err2 != nil {
		return err2
	}
	if err2 = master.SetMasterKey(masterKey); err2 != nil {
		return err2
	}
	if err2 = master.Setup(); err2 != nil {
		return err2
	}

	ctr, err2 := bes.OpenFSKeyContainer(c.String("path"))
	if err2 != nil {
		return err2
	}
	defer ctr.Close()
	if err2 = ctr.Reset(bes.NewContainerInfo(master), masterKey); err2 != nil {
		return err2
	}
	if nnl, ok := master.(*bes.NNLSD); ok {
		if err2 = nnl.StoreLabels(ctr); err2 != nil {
			return err2
		}
	}
	fmt.Printf("initialized %s master of %d users at %s\n",
		master.Name(), nbUsers, c.String("path"))
	return nil
}

func cmdIssue(c *cli.Context) error {
	master, ctr, err := masterFromContainer(c)
	if err != nil {
		return err
	}
	defer ctr.Close()

	user := bes.UserID(c.Int("user"))
	material, err2 := master.UserKey(user)
	if err2 != nil {
		return err2
	}

	userCtr, err2 := bes.OpenFSKeyContainer(c.String("out"))
	if err2 != nil {
		return err2
	}
	defer userCtr.Close()

	member, err2 := bes.NewSchemeFromName(
		schemeConfigName(master.Name()), user, master.NbUsers())
	if err2 != nil {
		return err2
	}
	if err2 = bes.StoreUserKey(userCtr, member, material); err2 != nil {
		return err2
	}
	fmt.Printf("issued key material of user %d to %s\n",
		user, c.String("out"))
	return nil
}

func schemeConfigName(scheme string) string {
	return scheme + "_AES256-CTR_HMAC-SHA256"
}

func main() {
	app := cli.NewApp()
	app.Name = "bes"
	app.Usage = "broadcast encryption (NNL-SD and SPBE)"

	app.Commands = []cli.Command{
		{
			Name:   "algs",
			Usage:  "List scheme configurations",
			Action: cmdAlgs,
		},
		{
			Name:   "demo",
			Usage:  "Run a full broadcast round trip in memory",
			Action: cmdDemo,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "scheme",
					Value: "NNL-SD_AES256-CTR_HMAC-SHA256"},
				cli.UintFlag{Name: "users", Value: 128},
				cli.StringFlag{Name: "revoke",
					Usage: "comma-separated revoked users"},
				cli.StringFlag{Name: "message", Value: "message"},
			},
		},
		{
			Name:   "setup",
			Usage:  "Initialize a master key container",
			Action: cmdSetup,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "path", Value: "master.key"},
				cli.StringFlag{Name: "scheme",
					Value: "NNL-SD_AES256-CTR_HMAC-SHA256"},
				cli.UintFlag{Name: "users", Value: 128},
				cli.StringFlag{Name: "master-key",
					Usage: "master secret in hex"},
			},
		},
		{
			Name:   "issue",
			Usage:  "Issue a member's key material from a master container",
			Action: cmdIssue,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "path", Value: "master.key"},
				cli.IntFlag{Name: "user"},
				cli.StringFlag{Name: "out", Value: "user.key"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bes: %s\n", err)
		os.Exit(1)
	}
}
