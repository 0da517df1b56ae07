package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/pagestore"
)

type cli struct {
	ds     pagestore.DataStore
	log    *zap.Logger
	stdin  io.Reader
	stdout io.Writer
}

func (c *cli) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "put":
		if len(args) < 3 || len(args) > 4 {
			return errors.New("usage: put SESSION PAGE [DATA]; data is read from stdin when omitted")
		}
		page, err := parsePage(args[2])
		if err != nil {
			return err
		}
		var data []byte
		if len(args) == 4 {
			data = []byte(args[3])
		} else if data, err = io.ReadAll(c.stdin); err != nil {
			return err
		}
		c.ds.StoreData(ctx, args[1], page, data)
		return nil

	case "get":
		if len(args) != 3 {
			return errors.New("usage: get SESSION PAGE")
		}
		page, err := parsePage(args[2])
		if err != nil {
			return err
		}
		data, ok := c.ds.GetData(ctx, args[1], page)
		if !ok {
			return errMiss
		}
		_, err = c.stdout.Write(data)
		return err

	case "rm":
		if len(args) != 3 {
			return errors.New("usage: rm SESSION PAGE")
		}
		page, err := parsePage(args[2])
		if err != nil {
			return err
		}
		c.ds.RemovePage(ctx, args[1], page)
		return nil

	case "rm-session":
		if len(args) != 2 {
			return errors.New("usage: rm-session SESSION")
		}
		c.ds.RemoveSession(ctx, args[1])
		return nil

	case "batch":
		return c.batch(ctx)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// batch runs one command per stdin line against the same store. Misses from get
// print an empty line; any other error stops the batch.
func (c *cli) batch(ctx context.Context) error {
	sc := bufio.NewScanner(c.stdin)
	sc.Buffer(make([]byte, 0, 64<<10), 8<<20)
	line := 0
	for sc.Scan() {
		line++
		args := strings.Fields(sc.Text())
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		if args[0] == "batch" {
			return fmt.Errorf("line %d: nested batch", line)
		}
		if args[0] == "put" && len(args) != 4 {
			return fmt.Errorf("line %d: usage: put SESSION PAGE DATA", line)
		}
		err := c.exec(ctx, args)
		if args[0] == "get" {
			if errors.Is(err, errMiss) {
				err = nil
			}
			if _, werr := io.WriteString(c.stdout, "\n"); werr != nil && err == nil {
				err = werr
			}
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		c.log.Debug("batch command done", zap.Int("line", line), zap.String("cmd", args[0]))
	}
	return sc.Err()
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("page id %q: %w", s, err)
	}
	return n, nil
}
