package main

import (
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Interaction Responses
// ============================================================================

func respondText(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(content).
		WithEphemeral(ephemeral))
}

func respondEmbed(event *events.ApplicationCommandInteractionCreate, embed discord.Embed, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithEmbeds(embed).
		WithEphemeral(ephemeral))
}

func respondComponentText(event *events.ComponentInteractionCreate, content string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(content).
		WithEphemeral(ephemeral))
}

func respondComponentEmbed(event *events.ComponentInteractionCreate, embed discord.Embed, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithEmbeds(embed).
		WithEphemeral(ephemeral))
}

func respondModalText(event *events.ModalSubmitInteractionCreate, content string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(content).
		WithEphemeral(ephemeral))
}

func sendChannelText(client bot.Client, channelID snowflake.ID, content string) error {
	_, err := client.Rest.CreateMessage(channelID, discord.MessageCreate{
		Content: content,
	})
	return err
}

func sendChannelEmbed(client bot.Client, channelID snowflake.ID, embed discord.Embed) error {
	_, err := client.Rest.CreateMessage(channelID, discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	})
	return err
}
