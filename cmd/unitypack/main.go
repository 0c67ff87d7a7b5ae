// Command unitypack inspects and rebuilds Unity asset bundles, web archives
// and serialized files.
package main

func main() {
	execute()
}
