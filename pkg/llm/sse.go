package llm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// sseStream 逐行读取 text/event-stream 响应，只处理 "data: " 行。
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	// decode 从单个 data 负载中取出文本；ok=false 表示该事件没有文本，应跳过。
	decode func(data []byte) (text string, ok bool)
}

func newSSEStream(body io.ReadCloser, decode func([]byte) (string, bool)) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body), decode: decode}
}

func (s *sseStream) Recv() (string, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			if err == io.EOF {
				return "", io.EOF
			}
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", io.EOF
		}
		if text, ok := s.decode([]byte(data)); ok {
			return text, nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
