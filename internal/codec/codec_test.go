// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	datadriven.RunTest(t, "testdata/codec", func(t *testing.T, td *datadriven.TestData) string {
		var buf strings.Builder
		switch td.Cmd {
		case "encode":
			for _, line := range strings.Split(td.Input, "\n") {
				s, err := strconv.Unquote(line)
				require.NoError(t, err)
				var out bytes.Buffer
				require.NoError(t, EncodeBytes(&out, []byte(s)))
				require.Equal(t, EncodedLen(len(s)), out.Len())
				fmt.Fprintf(&buf, "% x\n", out.Bytes())
			}
			return buf.String()

		case "encode-len":
			var n int
			td.ScanArgs(t, "n", &n)
			enc := AppendBytes(nil, make([]byte, n))
			require.Equal(t, EncodedLen(n), len(enc))
			fmt.Fprintf(&buf, "% x\n", enc[:len(enc)-n])
			return buf.String()

		case "decode":
			raw, err := hex.DecodeString(strings.Join(strings.Fields(td.Input), ""))
			require.NoError(t, err)
			d := NewDecoder(bytes.NewReader(raw))
			for {
				b, err := d.Decode()
				if err == io.EOF {
					buf.WriteString("EOF\n")
					break
				} else if err != nil {
					fmt.Fprintf(&buf, "error (%s)\n", base.KindOf(err))
					break
				}
				fmt.Fprintf(&buf, "%q\n", b)
			}
			return buf.String()

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		bytes.Repeat([]byte{0xff}, 300),
		[]byte("\x00\xfe\xffnot utf8 \xc3\x28"),
	}
	for i := 0; i < 50; i++ {
		b := make([]byte, rng.Intn(1<<12))
		rng.Read(b)
		inputs = append(inputs, b)
	}

	var stream bytes.Buffer
	for _, in := range inputs {
		var one bytes.Buffer
		require.NoError(t, EncodeBytes(&one, in))
		out, err := DecodeBytes(bytes.NewReader(one.Bytes()))
		require.NoError(t, err)
		require.Equal(t, len(in), len(out))
		require.True(t, bytes.Equal(in, out))
		stream.Write(one.Bytes())
	}

	d := NewDecoder(&stream)
	for _, in := range inputs {
		out, err := d.Decode()
		require.NoError(t, err)
		require.True(t, bytes.Equal(in, out))
	}
	_, err := d.Decode()
	require.Equal(t, io.EOF, err)
}

func TestDecodeOversized(t *testing.T) {
	enc := binary.AppendUvarint(nil, MaxLength+1)
	_, err := DecodeBytes(bytes.NewReader(enc))
	require.Equal(t, base.KindIO, base.KindOf(err))
}
