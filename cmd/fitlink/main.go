// Command fitlink corre la API de vinculación con Garmin/Strava y expone
// tareas operativas: migraciones, syncs manuales y login interactivo.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
