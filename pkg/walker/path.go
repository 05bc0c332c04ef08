package walker

// pathStack is the directory prefix of the current walk position. Each push
// records where its segment starts so pop can truncate back to it.
type pathStack struct {
	buf   []byte
	marks []int
}

func (p *pathStack) push(name string) {
	p.marks = append(p.marks, len(p.buf))
	p.buf = append(p.buf, name...)
	p.buf = append(p.buf, '/')
}

func (p *pathStack) pop() {
	n := len(p.marks) - 1
	if n < 0 {
		return
	}
	p.buf = p.buf[:p.marks[n]]
	p.marks = p.marks[:n]
}

// String returns the prefix, slash terminated unless empty.
func (p *pathStack) String() string {
	return string(p.buf)
}

// display is String for log messages.
func (p *pathStack) display() string {
	if len(p.buf) == 0 {
		return "/"
	}
	return "/" + string(p.buf)
}
