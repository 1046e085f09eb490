package eventstream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_SingleFrame(t *testing.T) {
	frame := EncodeFrame([]byte(`{"content":"hello"}`))
	dec := NewDecoder(bytes.NewReader(frame))

	payload, err := dec.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hello"}`, string(payload))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MultipleFramesInOrder(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeFrame([]byte(`{"content":"one"}`)))
	buf.Write(EncodeFrame([]byte(`{"content":"two"}`)))
	buf.Write(EncodeFrame([]byte(`{"usage":{"inputTokens":10,"outputTokens":20}}`)))

	dec := NewDecoder(&buf)

	var payloads [][]byte
	for {
		p, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		payloads = append(payloads, p)
	}

	require.Len(t, payloads, 3)
	assert.JSONEq(t, `{"content":"one"}`, string(payloads[0]))
	assert.JSONEq(t, `{"content":"two"}`, string(payloads[1]))
	assert.JSONEq(t, `{"usage":{"inputTokens":10,"outputTokens":20}}`, string(payloads[2]))
}

func TestDecoder_SkipsWhitespaceBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeFrame([]byte(`{"content":"a"}`)))
	buf.WriteString("\n\n  ")
	buf.Write(EncodeFrame([]byte(`{"content":"b"}`)))

	payloads, err := DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
}

func TestDecoder_HandlesReadsSplitAcrossFrameBoundary(t *testing.T) {
	frame := EncodeFrame([]byte(`{"content":"split across reads"}`))
	// A reader that returns data one byte at a time simulates chunked
	// network reads.
	dec := NewDecoder(&oneByteReader{data: frame})

	payload, err := dec.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"split across reads"}`, string(payload))
}

func TestDecoder_PartialTrailingDataAtEOFIsNotAnError(t *testing.T) {
	frame := EncodeFrame([]byte(`{"content":"ok"}`))
	truncated := append(frame, []byte{0x00, 0x01, 0x02}...)

	dec := NewDecoder(bytes.NewReader(truncated))

	payload, err := dec.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"ok"}`, string(payload))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_EmptyStreamIsEOF(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClassify_TextContent(t *testing.T) {
	kind, text, _, _ := Classify([]byte(`{"content":"hello world"}`))
	assert.Equal(t, KindText, kind)
	assert.Equal(t, "hello world", text.Content)
}

func TestClassify_ToolUse(t *testing.T) {
	kind, _, tool, _ := Classify([]byte(`{"toolUseId":"t1","name":"get_weather","input":"{\"city\":","stop":false}`))
	assert.Equal(t, KindToolUse, kind)
	assert.Equal(t, "t1", tool.ToolUseID)
	assert.Equal(t, "get_weather", tool.Name)
	assert.False(t, tool.Stop)
}

func TestClassify_Usage(t *testing.T) {
	kind, _, _, usage := Classify([]byte(`{"usage":{"inputTokens":5,"outputTokens":7}}`))
	assert.Equal(t, KindUsage, kind)
	assert.EqualValues(t, 5, usage.InputTokens)
	assert.EqualValues(t, 7, usage.OutputTokens)
}

func TestClassify_Unknown(t *testing.T) {
	kind, _, _, _ := Classify([]byte(`{"somethingElse":true}`))
	assert.Equal(t, KindUnknown, kind)
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:r.pos+1])
	r.pos += n
	return n, nil
}
