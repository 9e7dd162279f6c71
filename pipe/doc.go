/*
Package pipe is the engine of the player. It assembles transports and
processing elements into a Pipeline and drives it with a Task.

A Pipeline has the following layout:

	Source -> Element -> ... -> Element -> Sink

Source and Sink are transports: they move bytes from and to the outside
world (files, network, devices, callbacks). Elements transform the stream
and are connected with single slot block buses from the port package.

Transports and elements are not created directly. They are registered by
name in a Pool, which instantiates them when a Pipeline is assembled:

	pool := pipe.NewPool()
	pool.RegisterIO("io_file", file.Factory(file.Config{}))
	pool.RegisterElement("aud_dec", decoder.Factory())
	p, err := pool.NewPipeline("io_file", []string{"aud_dec"}, "")

Every Pipeline is driven by exactly one Task. The task runs all elements
on one goroutine, cooperatively, in chain order. State changes and stream
information are delivered through the Pipeline event handler.
*/
package pipe
