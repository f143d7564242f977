// qtbridge-demo serves a small demo backend for out-of-process frontends.
//
// The demo exposes a task list singleton and an instantiable Counter type,
// either over a unix socket or on stdin/stdout. Frontend processes connect
// with the matching QML plugin and drive the objects declaratively.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	qtbridge "github.com/qt/qtbridge"
)

type Task struct {
	Name string
	Done bool
}

type TaskList struct {
	Title string
	Count int

	tasks []Task
}

func (t *TaskList) Data() []Task { return t.tasks }

func (t *TaskList) SetItem(row int, name string) error {
	if row < 0 || row >= len(t.tasks) {
		return fmt.Errorf("no task at row %d", row)
	}
	t.tasks[row].Name = name
	return nil
}

func (t *TaskList) AddTask(name string) {
	t.tasks = append(t.tasks, Task{Name: name})
	t.Count = len(t.tasks)
}

func (t *TaskList) DropTask(index int) {
	t.tasks = append(t.tasks[:index], t.tasks[index+1:]...)
	t.Count = len(t.tasks)
}

type Counter struct {
	Value int
}

func (c *Counter) Data() []int { return []int{c.Value} }

func (c *Counter) Increment() {
	c.Value++
}

var (
	_ = qtbridge.Insert((*TaskList).AddTask, "name")
	_ = qtbridge.Remove((*TaskList).DropTask, "index")
)

type stdioStream struct{}

func (stdioStream) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioStream) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioStream) Close() error                { return nil }

func serve(stream io.ReadWriteCloser) error {
	c := qtbridge.NewConnection(stream)
	if _, err := c.RegisterInstance(&TaskList{Title: "Demo"}, "Tasks", "backend"); err != nil {
		return err
	}
	if _, err := c.RegisterType(Counter{}, nil); err != nil {
		return err
	}
	return c.Run()
}

func main() {
	// Optional local overrides, same form as the environment.
	_ = godotenv.Load()

	var socketPath string

	root := &cobra.Command{
		Use:   "qtbridge-demo",
		Short: "Serve the qtbridge demo backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if socketPath == "" {
				socketPath = os.Getenv("QTBRIDGE_SOCKET")
			}
			if socketPath == "" {
				return serve(stdioStream{})
			}

			os.Remove(socketPath)
			listener, err := net.Listen("unix", socketPath)
			if err != nil {
				return err
			}
			defer listener.Close()

			for {
				conn, err := listener.Accept()
				if err != nil {
					return err
				}
				if err := serve(conn); err != nil {
					log.Printf("connection closed: %s", err)
				}
			}
		},
	}
	root.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default: stdin/stdout)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
