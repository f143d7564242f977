// qmlscene combines qtbridge with one-line execution of QML applications.
//
// qmlscene combines https://github.com/special/qgoscene with qtbridge, for
// a convenient way to build and run bridged applications. qgoscene is a
// very simple API to run QML in a Go process, linking to Qt directly.
//
// In simple cases, an application can execute with:
//
//	c := qmlscene.Connection()
//	c.RegisterInstance(&Tasks{}, "Tasks", "backend")
//	qmlscene.ExecScene("main.qml")
package qmlscene

import (
	"fmt"
	"os"

	qtbridge "github.com/qt/qtbridge"
	"github.com/special/qgoscene"
)

var connection *qtbridge.Connection
var scene *qgoscene.Scene
var rB, wB, rF, wF *os.File

func Connection() *qtbridge.Connection {
	if connection == nil {
		rB, wB, _ = os.Pipe()
		rF, wF, _ = os.Pipe()
		connection = qtbridge.NewConnectionSplit(rF, wB)
	}
	return connection
}

func sceneArgs() []string {
	return append(os.Args, []string{"-qtbridge", fmt.Sprintf("fd:%d,%d", rB.Fd(), wF.Fd())}...)
}

func Scene() *qgoscene.Scene {
	return scene
}

func LoadScene(qmlRootFile string) *qgoscene.Scene {
	if scene != nil {
		panic("qmlscene does not support multiple scenes")
	}
	scene = qgoscene.NewScene(qmlRootFile, sceneArgs())
	return scene
}

func LoadSceneData(qmlString string) *qgoscene.Scene {
	if scene != nil {
		panic("qmlscene does not support multiple scenes")
	}
	scene = qgoscene.NewSceneData(qmlString, sceneArgs())
	return scene
}

func Exec() {
	if scene == nil {
		panic("qmlscene executed without a scene loaded")
	}
	if !connection.Started() {
		go connection.Run()
	}
	os.Exit(scene.Exec())
}

func ExecScene(qmlRootFile string) {
	LoadScene(qmlRootFile)
	Exec()
}

func ExecSceneData(qmlString string) {
	LoadSceneData(qmlString)
	Exec()
}
