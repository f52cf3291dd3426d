/*
 * Copyright 2021 National Library of Norway.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *       http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/gc"
	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/rebuild"
	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/stat"
)

type conf struct {
	cfgFile  string
	logLevel string
}

// NewCommand returns a new cobra.Command implementing the root command for
// warcrepo, the administrative CLI over a data store: rebuilding its index
// from the WARCs on disk, reclaiming temp-WARC garbage and reporting AU/
// collection/storage statistics.
func NewCommand() *cobra.Command {
	c := &conf{}
	cmd := &cobra.Command{
		Use:   "warcrepo",
		Short: "Administrative tool for a warcrepo data store",
		Long: `warcrepo operates directly on a data store's on-disk layout: its
collections, sealed WARCs, per-AU journals and temp-WARC pool. It does not
serve artifact reads or writes - that's the repository facade's job - it
exists for the operations an operator runs out of band: rebuilding a lost or
corrupted index, reclaiming temp-WARC garbage, and reporting on disk and
index health.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(c.logLevel)
			if err != nil {
				return fmt.Errorf("%q is not one of 'panic', 'fatal', 'error', 'warn', 'info', 'debug', 'trace'", c.logLevel)
			}
			log.SetLevel(level)
			return nil
		},
	}

	cobra.OnInitialize(func() { c.initConfig() })

	cmd.PersistentFlags().StringVarP(&c.logLevel, "log-level", "l", "info", "panic, fatal, error, warn, info, debug or trace")
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file. If not set, /etc/warcrepo/, $HOME/.warcrepo/ and the working directory are searched for config.yaml")
	cmd.PersistentFlags().StringSliceP("base-path", "b", []string{"."}, "data store base path (repeatable for a multi-volume store)")
	cmd.PersistentFlags().StringP("index-dir", "i", "", "badger index directory (defaults to <first base-path>/index)")
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		log.Fatalf("failed to bind persistent flags: %v", err)
	}

	cmd.AddCommand(rebuild.NewCommand())
	cmd.AddCommand(gc.NewCommand())
	cmd.AddCommand(stat.NewCommand())

	return cmd
}

// initConfig reads in a config file and environment variables, matching the
// root warcrecord repo's config conventions (viper.AutomaticEnv, "-"-to-"_"
// key replacement, live reload via fsnotify).
func (c *conf) initConfig() {
	viper.SetTypeByDefaultValue(true)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.cfgFile != "" {
		viper.SetConfigFile(c.cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/warcrepo/")
		viper.AddConfigPath("$HOME/.warcrepo")
		viper.AddConfigPath(".")
	}

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("config file changed: %s", e.Name)
	})

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("failed to read config file: %v", err)
		}
		return
	}
	log.Infof("using config file: %s", viper.ConfigFileUsed())
}
