package server

import (
	"bufio"
	"io"
	"strconv"

	"redikv/internal/resp"
)

// replyWriter renders replies onto a buffered connection writer,
// flushing after every reply so command N's response is fully written
// before command N+1 is read, per the ordering guarantee the dispatch
// loop depends on.
type replyWriter struct {
	w *bufio.Writer
}

func newReplyWriter(w io.Writer) *replyWriter {
	return &replyWriter{w: bufio.NewWriter(w)}
}

func (rw *replyWriter) write(r resp.Reply) error {
	if err := r.Render(rw.w); err != nil {
		return err
	}
	return rw.w.Flush()
}

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}
