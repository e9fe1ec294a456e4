package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mini-ipc/channel"
	"mini-ipc/message"
	"mini-ipc/server"
	"mini-ipc/wire"
)

func newServeCmd() *cobra.Command {
	var name string
	var pollMs int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Export sum, gettimeofday and strcat on a channel and dispatch forever",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := newDiag()
			ch, err := channel.CreateServer(name, channel.WithDiag(sink))
			if err != nil {
				return fmt.Errorf("create server channel: %w", err)
			}
			defer ch.Close()

			if err := exportTrivialProcedures(ch); err != nil {
				return err
			}

			svr, err := server.New(ch)
			if err != nil {
				return err
			}

			sink.Printf("serving %q, polling every %dms", name, pollMs)
			for {
				if err := svr.Action(pollMs); err != nil {
					return fmt.Errorf("server action: %w", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "trivial", "channel name (\"shm:<key>\" or \"mem:<hex>\" selects shared memory)")
	cmd.Flags().IntVar(&pollMs, "poll-ms", 1000, "Action's wait timeout in milliseconds")
	return cmd
}

func exportTrivialProcedures(ch *channel.Channel) error {
	sumPD := message.Descriptor{
		Name:   "sum",
		Retval: wire.Encode(wire.KindInt, 4),
		Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
	}
	if err := ch.Export("sum", sumPD, func(args []uint32, ret []byte) error {
		a := int32(args[0])
		b := int32(args[1])
		binary.LittleEndian.PutUint32(ret, uint32(a+b))
		return nil
	}); err != nil {
		return err
	}

	todPD := message.Descriptor{
		Name:   "gettimeofday",
		Retval: wire.Encode(wire.KindStruct, 16),
		Args:   nil,
	}
	if err := ch.Export("gettimeofday", todPD, func(args []uint32, ret []byte) error {
		now := time.Now()
		binary.LittleEndian.PutUint64(ret[0:], uint64(now.Unix()))
		binary.LittleEndian.PutUint64(ret[8:], uint64(now.Nanosecond()/1000))
		return nil
	}); err != nil {
		return err
	}

	strcatPD := message.Descriptor{
		Name:   "strcat",
		Retval: wire.Encode(wire.KindString, 0),
		Args:   []uint32{wire.Encode(wire.KindString, 0), wire.Encode(wire.KindString, 0)},
	}
	if err := ch.Export("strcat", strcatPD, func(args []uint32, ret []byte) error {
		buf := make([]byte, 4*len(args))
		for i, w := range args {
			binary.LittleEndian.PutUint32(buf[4*i:], w)
		}
		a := cStrFrom(buf)
		b := cStrFrom(buf[4*wire.WordCount(len(a)+1):])
		out := a + b
		n := copy(ret, out)
		ret[n] = 0
		return nil
	}); err != nil {
		return err
	}

	return nil
}

func cStrFrom(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
